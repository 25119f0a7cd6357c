package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/temirov/flux-validator/internal/discovery"
	"github.com/temirov/flux-validator/internal/index"
	"github.com/temirov/flux-validator/internal/manifest"
	"github.com/temirov/flux-validator/internal/report"
	"github.com/temirov/flux-validator/internal/rotation"
)

const (
	sectionSeparatorConstant            = "\n"
	discovererErrorTemplateConstant     = "invalid scan configuration: %w"
	indexingErrorTemplateConstant       = "unable to scan %s: %w"
	reportWriteErrorTemplateConstant    = "unable to write report: %w"
	verifierErrorTemplateConstant       = "unable to verify target key: %w"
	reencryptorErrorTemplateConstant    = "unable to prepare re-encryption: %w"
	nothingToRotateMessageConstant      = "Nothing to rotate"
	rotationIncompleteMessageConstant   = "Rotation incomplete"
	validationSummaryMessageConstant    = "Validation finished"
	rootFieldNameConstant               = "root"
	duplicateCountFieldNameConstant     = "duplicate_names"
	keyCountFieldNameConstant           = "kms_keys"
	findingCountFieldNameConstant       = "findings"
	exitCodeFieldNameConstant           = "exit_code"
	rotationErrorFieldNameConstant      = "error"
	rotationTargetKeyFieldNameConstant  = "kms_arn"
	rotationSourceKeysFieldNameConstant = "source_kms_arns"
)

// validate indexes root, writes the report sections, and rotates when requested.
func (application *Application) validate(executionContext context.Context, root string, output io.Writer) error {
	snapshot, indexError := application.indexManifests(executionContext, root)
	if indexError != nil {
		return fatalError(indexError)
	}

	duplicates := snapshot.Names.Duplicates()
	outcome := runOutcome{
		duplicates: len(duplicates) > 0,
		findings:   snapshot.HasFindings(),
	}

	sectionsError := report.WriteSections(output,
		report.DuplicateReporter{}.Report(snapshot.Names),
		report.KeyUsageReporter{}.Report(snapshot.Keys),
		report.FindingsReporter{}.Report(snapshot.ReadErrors, snapshot.ParseErrors),
	)
	if sectionsError != nil {
		return fatalError(fmt.Errorf(reportWriteErrorTemplateConstant, sectionsError))
	}

	if application.flagValues.rotate {
		rotationError := application.rotate(executionContext, root, snapshot, output, &outcome)
		if rotationError != nil {
			return rotationError
		}
	}

	application.logger.Debug(validationSummaryMessageConstant,
		zap.String(rootFieldNameConstant, root),
		zap.Int(duplicateCountFieldNameConstant, len(duplicates)),
		zap.Int(keyCountFieldNameConstant, len(snapshot.Keys)),
		zap.Int(findingCountFieldNameConstant, len(snapshot.ReadErrors)+len(snapshot.ParseErrors)),
		zap.Int(exitCodeFieldNameConstant, outcome.exitCode()))
	return outcome.asError()
}

func (application *Application) indexManifests(executionContext context.Context, root string) (index.Snapshot, error) {
	discoverer, discovererError := discovery.NewFilesystemManifestDiscoverer(
		application.fileSystem,
		application.configuration.Scan.Patterns,
		application.configuration.Scan.SkipDirectories,
	)
	if discovererError != nil {
		return index.Snapshot{}, fmt.Errorf(discovererErrorTemplateConstant, discovererError)
	}

	indexer, indexerError := index.NewIndexer(index.Dependencies{
		FileSystem: application.fileSystem,
		Discoverer: discoverer,
		Loader:     manifest.NewLoader(),
		Logger:     application.logger,
		Workers:    application.configuration.Scan.Workers,
	})
	if indexerError != nil {
		return index.Snapshot{}, indexerError
	}

	snapshot, indexError := indexer.Index(executionContext, root)
	if indexError != nil {
		return index.Snapshot{}, fmt.Errorf(indexingErrorTemplateConstant, root, indexError)
	}
	return snapshot, nil
}

func (application *Application) rotate(executionContext context.Context, root string, snapshot index.Snapshot, output io.Writer, outcome *runOutcome) error {
	rotationConfiguration := application.configuration.Rotation

	if rotationConfiguration.VerifyTargetKey {
		verifier, verifierError := application.verifierFactory(executionContext, rotationConfiguration.AWSRegion, rotationConfiguration.KeyARN, application.logger)
		if verifierError != nil {
			return fatalError(fmt.Errorf(verifierErrorTemplateConstant, verifierError))
		}
		if verifyError := verifier.Verify(executionContext, rotationConfiguration.KeyARN); verifyError != nil {
			return fatalError(fmt.Errorf(verifierErrorTemplateConstant, verifyError))
		}
	}

	reencryptor, reencryptorError := application.reencryptorFactory(application.logger, rotationConfiguration, application.humanReadableLoggingEnabled())
	if reencryptorError != nil {
		return fatalError(fmt.Errorf(reencryptorErrorTemplateConstant, reencryptorError))
	}

	coordinator, coordinatorError := rotation.NewCoordinator(rotation.Dependencies{
		FileSystem:    application.fileSystem,
		Reencryptor:   reencryptor,
		Loader:        manifest.NewLoader(),
		Logger:        application.logger,
		RootDirectory: root,
		Workers:       rotationConfiguration.Workers,
		CallTimeout:   rotationConfiguration.Timeout,
	})
	if coordinatorError != nil {
		return fatalError(coordinatorError)
	}

	results, rotateError := coordinator.RotateAll(executionContext, snapshot.Keys, application.flagValues.rotateFrom, rotationConfiguration.KeyARN)

	for _, result := range results {
		if writeError := writeOutput(output, sectionSeparatorConstant); writeError != nil {
			return fatalError(fmt.Errorf(reportWriteErrorTemplateConstant, writeError))
		}
		rotationSection := report.RotationReporter{}.Report(result)
		if _, writeError := rotationSection.WriteTo(output); writeError != nil {
			return fatalError(fmt.Errorf(reportWriteErrorTemplateConstant, writeError))
		}
		if result.HasFailures() {
			outcome.rotationFailed = true
			application.logger.Warn(rotationIncompleteMessageConstant,
				zap.String(rotationTargetKeyFieldNameConstant, result.NewKey),
				zap.Error(result.Err()))
		}
	}

	if rotateError == nil {
		return nil
	}
	if errors.Is(rotateError, rotation.ErrSameKey) || errors.Is(rotateError, rotation.ErrKeyRequired) || errors.Is(rotateError, context.Canceled) || errors.Is(rotateError, context.DeadlineExceeded) {
		return fatalError(rotateError)
	}
	if errors.Is(rotateError, rotation.ErrUnknownKey) || errors.Is(rotateError, rotation.ErrNothingToRotate) {
		application.logger.Warn(nothingToRotateMessageConstant,
			zap.String(rotationTargetKeyFieldNameConstant, rotationConfiguration.KeyARN),
			zap.Strings(rotationSourceKeysFieldNameConstant, application.flagValues.rotateFrom),
			zap.String(rotationErrorFieldNameConstant, rotateError.Error()))
		outcome.nothingToRotate = true
		return nil
	}
	return fatalError(rotateError)
}
