package hashtree

import (
	"fmt"

	"golang.org/x/xerrors"
)

// ErrorKind is the category of a proof error.
type ErrorKind int

const (
	// HashMismatch is the kind of error when the hash recomputed from the proof
	// differs from the expected one.
	HashMismatch ErrorKind = iota
	// Malformed is the kind of error when the proof is not well-formed, like
	// unordered or duplicated entries, embedded paths, missing or redundant
	// hashes, or inconsistent heights.
	Malformed
)

// String implements fmt.Stringer.
func (k ErrorKind) String() string {
	switch k {
	case HashMismatch:
		return "hash mismatch"
	case Malformed:
		return "malformed proof"
	default:
		return "unknown"
	}
}

// ProofError is returned when a proof fails to verify. A proof error is never
// a warning: the proof must be rejected.
type ProofError struct {
	Kind   ErrorKind
	Reason string
}

// Error implements error.
func (e *ProofError) Error() string {
	return fmt.Sprintf("%v: %s", e.Kind, e.Reason)
}

// NewMalformed returns a proof error of the malformed kind.
func NewMalformed(format string, args ...interface{}) *ProofError {
	return &ProofError{Kind: Malformed, Reason: fmt.Sprintf(format, args...)}
}

// NewHashMismatch returns a proof error of the hash mismatch kind.
func NewHashMismatch(expected, actual Digest) *ProofError {
	return &ProofError{
		Kind:   HashMismatch,
		Reason: fmt.Sprintf("expected %v but got %v", expected, actual),
	}
}

// IsHashMismatch returns true if the error, or an error that it wraps, is a
// proof error of the hash mismatch kind.
func IsHashMismatch(err error) bool {
	var perr *ProofError
	return xerrors.As(err, &perr) && perr.Kind == HashMismatch
}

// IsMalformed returns true if the error, or an error that it wraps, is a
// proof error of the malformed kind.
func IsMalformed(err error) bool {
	var perr *ProofError
	return xerrors.As(err, &perr) && perr.Kind == Malformed
}
