package common

import (
	"errors"
	"fmt"
)

type DocDBErrorCode int

const (
	// DuplicateObjectError indicates an attempt to create a collection or index
	// that already exists in the catalog.
	DuplicateObjectError DocDBErrorCode = iota
	// NoSuchObjectError indicates a request for a collection or index that does
	// not exist in the catalog.
	NoSuchObjectError
	// InvalidProjectionError is returned by the projection validator for specs that mix
	// inclusion and exclusion, collide on a path, or are otherwise malformed.
	InvalidProjectionError
	// InvalidExpressionError indicates a malformed aggregation or match expression.
	InvalidExpressionError
	// InvalidStageError indicates a pipeline stage that fails syntactic validation.
	InvalidStageError
	// InvalidIndexError indicates a malformed index key pattern.
	InvalidIndexError
	// InvalidDocumentError indicates input that cannot be decoded into a document.
	InvalidDocumentError
	// UnsupportedStageError is returned when a stage parses but has no executor.
	UnsupportedStageError
	// ResourceLimitError is returned by blocking executors that exceed their document budget.
	ResourceLimitError
	// InvalidNameError indicates an empty or malformed collection or index name.
	InvalidNameError
	// InvalidConfigError indicates a configuration value that fails validation.
	InvalidConfigError
)

func (ec DocDBErrorCode) String() string {
	switch ec {
	case DuplicateObjectError:
		return "DuplicateObjectError"
	case NoSuchObjectError:
		return "NoSuchObjectError"
	case InvalidProjectionError:
		return "InvalidProjectionError"
	case InvalidExpressionError:
		return "InvalidExpressionError"
	case InvalidStageError:
		return "InvalidStageError"
	case InvalidIndexError:
		return "InvalidIndexError"
	case InvalidDocumentError:
		return "InvalidDocumentError"
	case UnsupportedStageError:
		return "UnsupportedStageError"
	case ResourceLimitError:
		return "ResourceLimitError"
	case InvalidNameError:
		return "InvalidNameError"
	case InvalidConfigError:
		return "InvalidConfigError"
	}
	return "unknown"
}

// DocDBError is the custom error type for the database engine.
// It wraps a specific DocDBErrorCode with a detailed message.
//
// The optimizer itself never returns one: every DocDBError originates in a validator
// (parser, catalog) or in the execution layer.
type DocDBError struct {
	Code      DocDBErrorCode
	ErrString string
}

func (e DocDBError) Error() string {
	return fmt.Sprintf("err: %s; msg: %s", e.Code.String(), e.ErrString)
}

// NewError builds a DocDBError with a formatted message.
func NewError(code DocDBErrorCode, format string, args ...any) DocDBError {
	return DocDBError{Code: code, ErrString: fmt.Sprintf(format, args...)}
}

// IsCode reports whether err, or any error it wraps, is a DocDBError with the given code.
func IsCode(err error, code DocDBErrorCode) bool {
	var dbErr DocDBError
	if errors.As(err, &dbErr) {
		return dbErr.Code == code
	}
	return false
}
