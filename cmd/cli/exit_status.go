package cli

import (
	"errors"
	"fmt"
)

// Process exit codes.
const (
	ExitCodeClean           = 0
	ExitCodeFatal           = 1
	ExitCodeDuplicates      = 2
	ExitCodeFindings        = 3
	ExitCodeRotationFailed  = 4
	ExitCodeNothingToRotate = 5
)

const exitStatusTemplateConstant = "exit status %d"

// ErrTargetKeyRequired indicates --rotate was requested without a target key.
var ErrTargetKeyRequired = errors.New("--rotate requires a target key: pass --kms or set SOPS_KMS_ARN")

// ErrRotateFromWithoutRotate indicates --rotate-from was given without --rotate.
var ErrRotateFromWithoutRotate = errors.New("--rotate-from requires --rotate")

// ExitError carries the process exit code for a completed run. Err is nil when the
// report itself explains the outcome.
type ExitError struct {
	Code int
	Err  error
}

func (exitError ExitError) Error() string {
	if exitError.Err == nil {
		return fmt.Sprintf(exitStatusTemplateConstant, exitError.Code)
	}
	return exitError.Err.Error()
}

func (exitError ExitError) Unwrap() error {
	return exitError.Err
}

// runOutcome records the conditions observed during a run that affect the exit code.
type runOutcome struct {
	duplicates      bool
	findings        bool
	rotationFailed  bool
	nothingToRotate bool
}

// exitCode applies the precedence rotation failure, findings, nothing to rotate, duplicates.
func (outcome runOutcome) exitCode() int {
	switch {
	case outcome.rotationFailed:
		return ExitCodeRotationFailed
	case outcome.findings:
		return ExitCodeFindings
	case outcome.nothingToRotate:
		return ExitCodeNothingToRotate
	case outcome.duplicates:
		return ExitCodeDuplicates
	default:
		return ExitCodeClean
	}
}

func (outcome runOutcome) asError() error {
	code := outcome.exitCode()
	if code == ExitCodeClean {
		return nil
	}
	return ExitError{Code: code}
}

func fatalError(cause error) error {
	return ExitError{Code: ExitCodeFatal, Err: cause}
}
