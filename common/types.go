package common

import "fmt"

// ObjectID is a unique identifier for a collection/index/etc. in the database.
type ObjectID uint32

const InvalidObjectID ObjectID = 0

// RecordID identifies a specific document inside a collection. Record ids are assigned in
// insertion order and are never reused, so ordering by RecordID is insertion order.
type RecordID int64

const InvalidRecordID RecordID = 0

// IsNil checks if the RecordID refers to a valid document.
func (r RecordID) IsNil() bool {
	return r == InvalidRecordID
}

func (r RecordID) String() string {
	return fmt.Sprintf("rid(%d)", int64(r))
}
