package core

import (
	"errors"
	"fmt"
)

// CorrectionEntryPoint is the callable every correction script must define.
const CorrectionEntryPoint = "processar_csv"

var (
	// ErrNoGenerator is returned when a correction is needed, the cache
	// misses and no generator is configured.
	ErrNoGenerator = errors.New("no correction generator configured")

	// ErrMissingCallable means the executed script did not define the entry point.
	ErrMissingCallable = fmt.Errorf("script did not define %s(input_path, output_path)", CorrectionEntryPoint)

	// ErrNoOutput means the script ran but wrote no output file.
	ErrNoOutput = errors.New("script produced no output file")

	// ErrStillInvalid means the corrected output fails validation.
	ErrStillInvalid = errors.New("corrected output still fails validation")

	// ErrEmptyScript is returned when a generator answers with no code.
	ErrEmptyScript = errors.New("generator returned an empty script")

	// ErrScriptNotFound is returned by lookups that require a cached script.
	ErrScriptNotFound = errors.New("no script cached for fingerprint")
)

// ReadError means a file could not be parsed under any attempted encoding.
// It is fatal for the validation pass and is never retried.
type ReadError struct {
	Path     string
	Encoding string
	Err      error
}

func (e *ReadError) Error() string {
	if e.Encoding != "" {
		return fmt.Sprintf("read error (%s): %v", e.Encoding, e.Err)
	}
	return fmt.Sprintf("read error: %v", e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// GenerationFailure means the correction generator returned nothing usable.
type GenerationFailure struct {
	Err error
}

func (e *GenerationFailure) Error() string {
	return fmt.Sprintf("generation failed: %v", e.Err)
}

func (e *GenerationFailure) Unwrap() error { return e.Err }

// ExecutionContractViolation means the correction script broke its contract:
// the entry point was missing, it raised, it wrote no output, or the output
// still fails validation (Remaining holds those findings).
type ExecutionContractViolation struct {
	Err       error
	Stderr    string
	Remaining *Report
}

func (e *ExecutionContractViolation) Error() string {
	msg := fmt.Sprintf("execution contract violation: %v", e.Err)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *ExecutionContractViolation) Unwrap() error { return e.Err }

// PersistenceFailure means a cache, audit or ingestion write failed.
// It never rolls back a validation result already returned to the caller.
type PersistenceFailure struct {
	Op  string
	Err error
}

func (e *PersistenceFailure) Error() string {
	return fmt.Sprintf("persistence failure (%s): %v", e.Op, e.Err)
}

func (e *PersistenceFailure) Unwrap() error { return e.Err }
