package rotation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/temirov/flux-validator/internal/index"
)

const planKeyErrorTemplateConstant = "%w: %s"

var (
	// ErrKeyRequired indicates a rotation was requested without a source or target key.
	ErrKeyRequired = errors.New("rotation requires both a source and a target key")
	// ErrSameKey indicates the source and target keys are identical.
	ErrSameKey = errors.New("rotation source and target keys are identical")
	// ErrUnknownKey indicates no indexed manifest references the source key.
	ErrUnknownKey = errors.New("no manifests reference key")
	// ErrNothingToRotate indicates every indexed manifest already uses only the target key.
	ErrNothingToRotate = errors.New("no manifests use a key other than the target")
)

// Plan lists the files to move from OldKey to NewKey.
type Plan struct {
	OldKey  string
	NewKey  string
	Targets []string
}

// NewPlan computes a plan from the current key index. Targets are the sorted, distinct
// files indexed under oldKey.
func NewPlan(keys index.KeyIndex, oldKey string, newKey string) (Plan, error) {
	trimmedOldKey := strings.TrimSpace(oldKey)
	trimmedNewKey := strings.TrimSpace(newKey)
	if len(trimmedOldKey) == 0 || len(trimmedNewKey) == 0 {
		return Plan{}, ErrKeyRequired
	}
	if trimmedOldKey == trimmedNewKey {
		return Plan{}, fmt.Errorf(planKeyErrorTemplateConstant, ErrSameKey, trimmedOldKey)
	}

	targets := keys.Paths(trimmedOldKey)
	if len(targets) == 0 {
		return Plan{}, fmt.Errorf(planKeyErrorTemplateConstant, ErrUnknownKey, trimmedOldKey)
	}

	distinctTargets := targets[:0]
	for targetIndex, target := range targets {
		if targetIndex > 0 && target == targets[targetIndex-1] {
			continue
		}
		distinctTargets = append(distinctTargets, target)
	}

	return Plan{OldKey: trimmedOldKey, NewKey: trimmedNewKey, Targets: distinctTargets}, nil
}
