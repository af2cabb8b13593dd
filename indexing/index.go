package indexing

import (
	"mit.edu/dsg/docdb/common"
	"mit.edu/dsg/docdb/storage"
)

// Index defines the interface for document indexes.
// An index maps the key values extracted from a document (see ExtractKeys) to its RecordID.
// A document may produce several entries when a key path crosses an array.
type Index interface {
	// Pattern returns the key pattern together with the multikey paths observed so far.
	Pattern() KeyPattern

	// InsertDocument adds the entries of the given document.
	InsertDocument(rid common.RecordID, doc *storage.Document) error

	// DeleteDocument removes the entries of the given document. The document must be the
	// one that was inserted under rid.
	DeleteDocument(rid common.RecordID, doc *storage.Document) error

	// Scan returns an iterator over a snapshot of the index, restricted to the entries whose
	// leading key value lies in the interval. Entries come in index order.
	Scan(interval Interval) (ScanIterator, error)

	// Len returns the number of index entries.
	Len() int
}

// ScanIterator iterates over the results of a range scan.
// It follows the standard Iterator pattern (Next -> Key/Value -> Close).
type ScanIterator interface {
	// Next advances the iterator to the next entry.
	// Returns true if an entry exists, false if the scan is exhausted.
	Next() bool

	// Key returns the current key at the cursor.
	Key() Key

	// Value returns the current value at the cursor.
	Value() common.RecordID

	// Error returns the first unexpected error encountered by the iterator.
	Error() error

	// Close releases any resources held by the iterator.
	Close() error
}
