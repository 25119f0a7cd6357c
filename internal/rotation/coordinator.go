package rotation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/temirov/flux-validator/internal/index"
	"github.com/temirov/flux-validator/internal/manifest"
)

const (
	defaultWorkerCountConstant         = 1
	defaultCallTimeoutConstant         = 2 * time.Minute
	temporaryFilePatternTemplate       = ".%s.rotate-*"
	inspectErrorTemplateConstant       = "unable to inspect %s: %w"
	readErrorTemplateConstant          = "unable to read %s: %w"
	parseBeforeErrorTemplateConstant   = "unable to parse %s before rotation: %w"
	keyErrorTemplateConstant           = "%w: %s"
	reencryptErrorTemplateConstant     = "re-encryption failed: %w"
	invalidOutputErrorTemplateConstant = "%w: %v"
	createTemporaryErrorTemplate       = "unable to create temporary file in %s: %w"
	writeTemporaryErrorTemplate        = "unable to write temporary file %s: %w"
	syncTemporaryErrorTemplate         = "unable to sync temporary file %s: %w"
	closeTemporaryErrorTemplate        = "unable to close temporary file %s: %w"
	chmodTemporaryErrorTemplate        = "unable to set permissions on %s: %w"
	renameTemporaryErrorTemplate       = "unable to replace %s: %w"
	rotationStartedMessageConstant     = "Rotating manifests"
	rotationFileSucceededMessage       = "Rotated manifest"
	rotationFileFailedMessage          = "Manifest rotation failed"
	rotationCompletedMessageConstant   = "Rotation finished"
	pathFieldNameConstant              = "path"
	oldKeyFieldNameConstant            = "old_kms_arn"
	newKeyFieldNameConstant            = "kms_arn"
	targetCountFieldNameConstant       = "targets"
	succeededCountFieldNameConstant    = "succeeded"
	failedCountFieldNameConstant       = "failed"
)

// ErrReencryptorNotConfigured indicates the coordinator was constructed without a re-encryptor.
var ErrReencryptorNotConfigured = errors.New("re-encryptor not configured")

// DocumentLoader parses manifest content into documents.
type DocumentLoader interface {
	Load(path string, content []byte) ([]manifest.Document, error)
}

// Dependencies wires the collaborators used by Coordinator.
type Dependencies struct {
	FileSystem    afero.Fs
	Reencryptor   Reencryptor
	Loader        DocumentLoader
	Logger        *zap.Logger
	RootDirectory string
	Workers       int
	CallTimeout   time.Duration
}

// Coordinator rewrites planned files under a new key, isolating failures per file.
type Coordinator struct {
	fileSystem    afero.Fs
	reencryptor   Reencryptor
	loader        DocumentLoader
	logger        *zap.Logger
	rootDirectory string
	workers       int
	callTimeout   time.Duration
}

// NewCoordinator constructs a Coordinator, filling unset dependencies with defaults.
func NewCoordinator(dependencies Dependencies) (*Coordinator, error) {
	if dependencies.Reencryptor == nil {
		return nil, ErrReencryptorNotConfigured
	}

	fileSystem := dependencies.FileSystem
	if fileSystem == nil {
		fileSystem = afero.NewOsFs()
	}
	loader := dependencies.Loader
	if loader == nil {
		loader = manifest.NewLoader()
	}
	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	workers := dependencies.Workers
	if workers <= 0 {
		workers = defaultWorkerCountConstant
	}
	callTimeout := dependencies.CallTimeout
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeoutConstant
	}

	return &Coordinator{
		fileSystem:    fileSystem,
		reencryptor:   dependencies.Reencryptor,
		loader:        loader,
		logger:        logger,
		rootDirectory: dependencies.RootDirectory,
		workers:       workers,
		callTimeout:   callTimeout,
	}, nil
}

// Rotate processes every target of the plan. A failing file is recorded and the
// remaining files are still processed.
func (coordinator *Coordinator) Rotate(executionContext context.Context, plan Plan) Result {
	coordinator.logger.Info(rotationStartedMessageConstant,
		zap.String(oldKeyFieldNameConstant, plan.OldKey),
		zap.String(newKeyFieldNameConstant, plan.NewKey),
		zap.Int(targetCountFieldNameConstant, len(plan.Targets)))

	result := Result{OldKey: plan.OldKey, NewKey: plan.NewKey}
	var resultMutex sync.Mutex

	var workerGroup errgroup.Group
	workerGroup.SetLimit(coordinator.workers)
	for _, target := range plan.Targets {
		workerGroup.Go(func() error {
			rotationError := coordinator.rotateFile(executionContext, plan, target)

			resultMutex.Lock()
			defer resultMutex.Unlock()
			if rotationError != nil {
				coordinator.logger.Warn(rotationFileFailedMessage,
					zap.String(pathFieldNameConstant, target),
					zap.String(newKeyFieldNameConstant, plan.NewKey),
					zap.Error(rotationError))
				result.Failed = append(result.Failed, &RotationFailure{Path: target, Cause: rotationError})
				return nil
			}
			coordinator.logger.Info(rotationFileSucceededMessage,
				zap.String(pathFieldNameConstant, target),
				zap.String(newKeyFieldNameConstant, plan.NewKey))
			result.Succeeded = append(result.Succeeded, target)
			return nil
		})
	}
	_ = workerGroup.Wait()

	result.sort()
	coordinator.logger.Info(rotationCompletedMessageConstant,
		zap.String(oldKeyFieldNameConstant, plan.OldKey),
		zap.String(newKeyFieldNameConstant, plan.NewKey),
		zap.Int(succeededCountFieldNameConstant, len(result.Succeeded)),
		zap.Int(failedCountFieldNameConstant, len(result.Failed)))
	return result
}

// RotateAll rotates each source key to newKey in turn. When oldKeys is empty every indexed key
// other than newKey is a source. Plan errors do not stop the remaining keys; they are joined
// into the returned error.
func (coordinator *Coordinator) RotateAll(executionContext context.Context, keys index.KeyIndex, oldKeys []string, newKey string) ([]Result, error) {
	sourceKeys := distinctKeys(oldKeys)
	if len(sourceKeys) == 0 {
		for _, keyARN := range keys.Keys() {
			if keyARN == strings.TrimSpace(newKey) {
				continue
			}
			sourceKeys = append(sourceKeys, keyARN)
		}
		if len(sourceKeys) == 0 {
			return nil, fmt.Errorf(keyErrorTemplateConstant, ErrNothingToRotate, newKey)
		}
	}

	var results []Result
	var planErrors []error
	for _, sourceKey := range sourceKeys {
		plan, planError := NewPlan(keys, sourceKey, newKey)
		if planError != nil {
			planErrors = append(planErrors, planError)
			continue
		}
		if contextError := executionContext.Err(); contextError != nil {
			planErrors = append(planErrors, contextError)
			break
		}
		results = append(results, coordinator.Rotate(executionContext, plan))
	}

	return results, errors.Join(planErrors...)
}

// distinctKeys trims keys and drops repeats, keeping the first occurrence of each.
func distinctKeys(keys []string) []string {
	var distinct []string
	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		trimmedKey := strings.TrimSpace(key)
		if _, duplicate := seen[trimmedKey]; duplicate {
			continue
		}
		seen[trimmedKey] = struct{}{}
		distinct = append(distinct, trimmedKey)
	}
	return distinct
}

func (coordinator *Coordinator) rotateFile(executionContext context.Context, plan Plan, target string) error {
	if contextError := executionContext.Err(); contextError != nil {
		return contextError
	}

	absolutePath := filepath.Join(coordinator.rootDirectory, filepath.FromSlash(target))
	fileInfo, statError := coordinator.fileSystem.Stat(absolutePath)
	if statError != nil {
		return fmt.Errorf(inspectErrorTemplateConstant, target, statError)
	}

	content, readError := afero.ReadFile(coordinator.fileSystem, absolutePath)
	if readError != nil {
		return fmt.Errorf(readErrorTemplateConstant, target, readError)
	}

	currentDocuments, loadError := coordinator.loader.Load(target, content)
	if loadError != nil {
		return fmt.Errorf(parseBeforeErrorTemplateConstant, target, loadError)
	}
	if !manifest.AnyReferencesKey(currentDocuments, plan.OldKey) {
		return fmt.Errorf(keyErrorTemplateConstant, ErrStaleTarget, plan.OldKey)
	}

	callContext, cancelCall := context.WithTimeout(executionContext, coordinator.callTimeout)
	rotatedContent, reencryptError := coordinator.reencryptor.Reencrypt(callContext, absolutePath, content, plan.OldKey, plan.NewKey)
	cancelCall()
	if reencryptError != nil {
		return fmt.Errorf(reencryptErrorTemplateConstant, reencryptError)
	}

	if validationError := coordinator.validateOutput(target, rotatedContent, plan); validationError != nil {
		return validationError
	}

	return coordinator.replaceFile(absolutePath, rotatedContent, fileInfo.Mode().Perm())
}

func (coordinator *Coordinator) validateOutput(target string, rotatedContent []byte, plan Plan) error {
	rotatedDocuments, loadError := coordinator.loader.Load(target, rotatedContent)
	if loadError != nil {
		return fmt.Errorf(invalidOutputErrorTemplateConstant, ErrInvalidOutput, loadError)
	}
	if len(rotatedDocuments) == 0 {
		return ErrInvalidOutput
	}
	if !manifest.AnyReferencesKey(rotatedDocuments, plan.NewKey) {
		return ErrTargetKeyMissing
	}
	if manifest.AnyReferencesKey(rotatedDocuments, plan.OldKey) {
		return ErrSourceKeyRetained
	}
	return nil
}

// replaceFile writes content beside path and renames it into place so readers never observe a partial file.
func (coordinator *Coordinator) replaceFile(path string, content []byte, permissions os.FileMode) (replaceError error) {
	directory := filepath.Dir(path)
	temporaryFile, createError := afero.TempFile(coordinator.fileSystem, directory, fmt.Sprintf(temporaryFilePatternTemplate, filepath.Base(path)))
	if createError != nil {
		return fmt.Errorf(createTemporaryErrorTemplate, directory, createError)
	}
	temporaryPath := temporaryFile.Name()

	closed := false
	defer func() {
		if replaceError == nil {
			return
		}
		if !closed {
			_ = temporaryFile.Close()
		}
		_ = coordinator.fileSystem.Remove(temporaryPath)
	}()

	if _, writeError := temporaryFile.Write(content); writeError != nil {
		return fmt.Errorf(writeTemporaryErrorTemplate, temporaryPath, writeError)
	}
	if syncError := temporaryFile.Sync(); syncError != nil {
		return fmt.Errorf(syncTemporaryErrorTemplate, temporaryPath, syncError)
	}
	closed = true
	if closeError := temporaryFile.Close(); closeError != nil {
		return fmt.Errorf(closeTemporaryErrorTemplate, temporaryPath, closeError)
	}
	if chmodError := coordinator.fileSystem.Chmod(temporaryPath, permissions); chmodError != nil {
		return fmt.Errorf(chmodTemporaryErrorTemplate, temporaryPath, chmodError)
	}
	if renameError := coordinator.fileSystem.Rename(temporaryPath, path); renameError != nil {
		return fmt.Errorf(renameTemporaryErrorTemplate, path, renameError)
	}
	return nil
}
