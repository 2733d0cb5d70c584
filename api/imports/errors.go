package imports

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced to the caller with no job state mutation
var (
	ErrJobNotFound      = errors.New("import job not found")
	ErrPermissionDenied = errors.New("no access to this import job")
)

// ParseError means the uploaded file could not be turned into headers+rows.
// Job-fatal: the job moves to failed with the message recorded.
type ParseError struct {
	Msg string
}

func (e *ParseError) Error() string {
	return "parse error: " + e.Msg
}

// MappingError means a required target field ended up unmapped.
type MappingError struct {
	Field string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("mapping error: required field %q is not mapped", e.Field)
}

// StagingError wraps a bulk staging write failure. Timeout is set when the
// staging deadline elapsed before the write finished; the write itself may
// still land in the backend afterwards (cooperative cancellation only).
type StagingError struct {
	Err     error
	Timeout bool
}

func (e *StagingError) Error() string {
	if e.Timeout {
		return "staging timed out: " + e.Err.Error()
	}
	return "staging failed: " + e.Err.Error()
}

func (e *StagingError) Unwrap() error {
	return e.Err
}

// MaterializationRowError is per-row and never fatal to the batch: it is
// recorded against the row and the materializer moves on.
type MaterializationRowError struct {
	RowNumber int
	Reason    string
}

func (e *MaterializationRowError) Error() string {
	return fmt.Sprintf("row %d: %s", e.RowNumber, e.Reason)
}
