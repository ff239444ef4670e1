// Package psierr defines the error kinds shared by every stage of a
// matching run. Callers test for a kind with errors.Is.
package psierr

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration reports parameters that cannot produce a correct run.
	ErrConfiguration = errors.New("configuration error")

	// ErrTableOverflow reports a Cuckoo insertion that ran out of
	// re-insertions or a simple-hash bin that exceeded its capacity.
	ErrTableOverflow = errors.New("table overflow")

	// ErrTransport reports a broken, short or malformed frame.
	ErrTransport = errors.New("transport error")

	// ErrInputValidation reports a set element or group point that is
	// outside the accepted domain.
	ErrInputValidation = errors.New("input validation error")

	// ErrDecryptionMismatch reports an answer whose shape does not match
	// the query it was computed for.
	ErrDecryptionMismatch = errors.New("decryption mismatch")
)

// Structures that may overflow.
const (
	StructureCuckoo = "cuckoo"
	StructureSimple = "simple"
)

// TableOverflowError carries the structure that failed and where.
type TableOverflowError struct {
	Structure string
	// Bin is the overflowing simple-hash bin, -1 for Cuckoo failures.
	Bin int
	// Attempts is the number of placement attempts made for Cuckoo failures.
	Attempts int
}

func (e *TableOverflowError) Error() string {
	if e.Structure == StructureCuckoo {
		return fmt.Sprintf("%s: %s table gave up after %d attempts", ErrTableOverflow, e.Structure, e.Attempts)
	}
	return fmt.Sprintf("%s: %s table bin %d over capacity", ErrTableOverflow, e.Structure, e.Bin)
}

func (e *TableOverflowError) Unwrap() error {
	return ErrTableOverflow
}

// Configuration wraps a formatted message as an ErrConfiguration.
func Configuration(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// InputValidation wraps a formatted message as an ErrInputValidation.
func InputValidation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInputValidation, fmt.Sprintf(format, args...))
}

// Transport wraps a formatted message as an ErrTransport.
func Transport(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrTransport, fmt.Sprintf(format, args...))
}

// DecryptionMismatch wraps a formatted message as an ErrDecryptionMismatch.
func DecryptionMismatch(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDecryptionMismatch, fmt.Sprintf(format, args...))
}
