package merkledb

import (
	"fmt"

	"golang.org/x/xerrors"
)

// EngineError is returned when the storage fails or when corrupted data is
// detected. It is fatal: after a failed merge, the database refuses every
// operation.
type EngineError struct {
	Op  string
	Err error
}

// Error implements error.
func (e *EngineError) Error() string {
	return fmt.Sprintf("engine error during %s: %v", e.Op, e.Err)
}

// Unwrap returns the cause of the error.
func (e *EngineError) Unwrap() error {
	return e.Err
}

func newEngineError(op string, err error) *EngineError {
	return &EngineError{Op: op, Err: err}
}

// IsEngineError returns true if the error, or an error it wraps, is an
// EngineError.
func IsEngineError(err error) bool {
	var eerr *EngineError
	return xerrors.As(err, &eerr)
}

// IndexTypeError is returned when an index is opened with a type or codecs
// that differ from the ones it was created with. Nothing is modified.
type IndexTypeError struct {
	Address  Address
	Expected IndexMetadata
	Actual   IndexMetadata
}

// Error implements error.
func (e *IndexTypeError) Error() string {
	return fmt.Sprintf("index '%v' is a %v<%s,%s> but was opened as a %v<%s,%s>",
		e.Address, e.Actual.Type, e.Actual.KeyCodec, e.Actual.ValueCodec,
		e.Expected.Type, e.Expected.KeyCodec, e.Expected.ValueCodec)
}

// IsIndexTypeError returns true if the error, or an error it wraps, is an
// IndexTypeError.
func IsIndexTypeError(err error) bool {
	var terr *IndexTypeError
	return xerrors.As(err, &terr)
}
