package rotation

import (
	"errors"
	"fmt"
	"sort"

	"github.com/hengadev/errsx"
)

const rotationFailureTemplateConstant = "%s: %v"

var (
	// ErrStaleTarget indicates a planned file no longer references the source key.
	ErrStaleTarget = errors.New("file no longer references the source key")
	// ErrInvalidOutput indicates the re-encrypted content could not be parsed.
	ErrInvalidOutput = errors.New("re-encrypted content is not valid YAML")
	// ErrTargetKeyMissing indicates the re-encrypted content does not reference the target key.
	ErrTargetKeyMissing = errors.New("re-encrypted content does not reference the target key")
	// ErrSourceKeyRetained indicates the re-encrypted content still references the source key.
	ErrSourceKeyRetained = errors.New("re-encrypted content still references the source key")
)

// RotationFailure records why a single file could not be rotated.
type RotationFailure struct {
	Path  string
	Cause error
}

func (failure *RotationFailure) Error() string {
	return fmt.Sprintf(rotationFailureTemplateConstant, failure.Path, failure.Cause)
}

func (failure *RotationFailure) Unwrap() error {
	return failure.Cause
}

// Result summarizes a rotation run.
type Result struct {
	OldKey    string
	NewKey    string
	Succeeded []string
	Failed    []*RotationFailure
}

// HasFailures reports whether any file failed to rotate.
func (result Result) HasFailures() bool {
	return len(result.Failed) > 0
}

// Err aggregates the per-file failures keyed by path, or returns nil when every file rotated.
func (result Result) Err() error {
	var failures errsx.Map
	for _, failure := range result.Failed {
		failures.Set(failure.Path, failure.Cause)
	}
	if failures.IsEmpty() {
		return nil
	}
	return failures.AsError()
}

func (result *Result) sort() {
	sort.Strings(result.Succeeded)
	sort.Slice(result.Failed, func(leftIndex int, rightIndex int) bool {
		return result.Failed[leftIndex].Path < result.Failed[rightIndex].Path
	})
}
