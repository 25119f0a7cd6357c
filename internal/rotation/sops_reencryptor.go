package rotation

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/temirov/flux-validator/internal/execshell"
)

const (
	sopsRotateFlagConstant     = "--rotate"
	sopsAddKMSFlagConstant     = "--add-kms"
	sopsRemoveKMSFlagConstant  = "--rm-kms"
	sopsInputTypeFlagConstant  = "--input-type"
	sopsOutputTypeFlagConstant = "--output-type"
	sopsYAMLTypeConstant       = "yaml"
)

// ErrSopsExecutorNotConfigured indicates the sops re-encryptor was constructed without an executor.
var ErrSopsExecutorNotConfigured = errors.New("sops executor not configured")

// Reencryptor moves encrypted manifest content from one KMS key to another.
type Reencryptor interface {
	Reencrypt(executionContext context.Context, path string, content []byte, oldKey string, newKey string) ([]byte, error)
}

// SopsExecutor runs the sops binary.
type SopsExecutor interface {
	ExecuteSops(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// SopsReencryptor rotates a file's data key with sops, adding the new master key and removing the old one.
type SopsReencryptor struct {
	executor SopsExecutor
}

// NewSopsReencryptor constructs a SopsReencryptor.
func NewSopsReencryptor(executor SopsExecutor) (*SopsReencryptor, error) {
	if executor == nil {
		return nil, ErrSopsExecutorNotConfigured
	}
	return &SopsReencryptor{executor: executor}, nil
}

// Reencrypt runs sops against path and returns the rewritten document from standard output.
// The file on disk is left untouched.
func (reencryptor *SopsReencryptor) Reencrypt(executionContext context.Context, path string, _ []byte, oldKey string, newKey string) ([]byte, error) {
	details := execshell.CommandDetails{
		Arguments:        SopsRotationArguments(path, oldKey, newKey),
		WorkingDirectory: filepath.Dir(path),
	}

	result, executionError := reencryptor.executor.ExecuteSops(executionContext, details)
	if executionError != nil {
		return nil, executionError
	}
	return []byte(result.StandardOutput), nil
}

// SopsRotationArguments builds the sops arguments that rotate path from oldKey to newKey.
func SopsRotationArguments(path string, oldKey string, newKey string) []string {
	return []string{
		sopsRotateFlagConstant,
		sopsAddKMSFlagConstant, newKey,
		sopsRemoveKMSFlagConstant, oldKey,
		sopsInputTypeFlagConstant, sopsYAMLTypeConstant,
		sopsOutputTypeFlagConstant, sopsYAMLTypeConstant,
		path,
	}
}
