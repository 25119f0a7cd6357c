package cli

import (
	"context"

	"go.uber.org/zap"

	"github.com/temirov/flux-validator/internal/execshell"
	"github.com/temirov/flux-validator/internal/kmskeys"
	"github.com/temirov/flux-validator/internal/rotation"
	"github.com/temirov/flux-validator/internal/ui"
)

// ReencryptorFactory builds the re-encryption primitive used during rotation.
type ReencryptorFactory func(logger *zap.Logger, configuration RotationConfiguration, humanReadableLogging bool) (rotation.Reencryptor, error)

// KeyVerifier checks that a KMS key can receive rotated manifests.
type KeyVerifier interface {
	Verify(executionContext context.Context, keyARN string) error
}

// KeyVerifierFactory builds a KeyVerifier for the configured region.
type KeyVerifierFactory func(executionContext context.Context, region string, keyARN string, logger *zap.Logger) (KeyVerifier, error)

func newSopsReencryptor(logger *zap.Logger, configuration RotationConfiguration, humanReadableLogging bool) (rotation.Reencryptor, error) {
	executorOptions := []execshell.ExecutorOption{execshell.WithSopsBinary(configuration.SopsBinary)}
	if humanReadableLogging {
		executorOptions = append(executorOptions, execshell.WithCommandEventObserver(ui.NewConsoleCommandEventLogger(logger)))
	}

	executor, executorError := execshell.NewShellExecutor(logger, execshell.NewOSCommandRunner(), executorOptions...)
	if executorError != nil {
		return nil, executorError
	}
	return rotation.NewSopsReencryptor(executor)
}

func newKMSKeyVerifier(executionContext context.Context, region string, keyARN string, logger *zap.Logger) (KeyVerifier, error) {
	return kmskeys.NewVerifierFromEnvironment(executionContext, region, keyARN, logger)
}
