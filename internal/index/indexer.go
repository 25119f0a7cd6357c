package index

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/temirov/flux-validator/internal/discovery"
	"github.com/temirov/flux-validator/internal/manifest"
)

const (
	defaultWorkerCountConstant         = 4
	discoveryErrorTemplateConstant     = "manifest discovery failed: %w"
	indexingStartedMessageConstant     = "Indexing manifests"
	indexingCompletedMessageConstant   = "Indexed manifests"
	unreadableFileMessageConstant      = "Unable to read manifest"
	unreadableDirectoryMessageConstant = "Unable to list directory"
	invalidDocumentMessageConstant     = "Invalid manifest document"
	rootFieldNameConstant              = "root"
	pathFieldNameConstant              = "path"
	segmentFieldNameConstant           = "segment"
	fileCountFieldNameConstant         = "files"
	documentCountFieldNameConstant     = "documents"
	findingCountFieldNameConstant      = "findings"
)

// ErrDiscovererNotConfigured indicates the indexer was constructed without a discoverer.
var ErrDiscovererNotConfigured = errors.New("manifest discoverer not configured")

// ManifestDiscoverer lists manifest files beneath a root as slash separated relative paths.
type ManifestDiscoverer interface {
	DiscoverManifests(root string) ([]string, []discovery.ReadError, error)
}

// DocumentLoader parses manifest content into documents.
type DocumentLoader interface {
	Load(path string, content []byte) ([]manifest.Document, error)
}

// Snapshot is the outcome of indexing a directory tree.
type Snapshot struct {
	Root          string
	Names         NameIndex
	Keys          KeyIndex
	FileCount     int
	DocumentCount int
	ReadErrors    []discovery.ReadError
	ParseErrors   []*manifest.ParseError
}

// HasFindings reports whether any file or document could not be indexed.
func (snapshot Snapshot) HasFindings() bool {
	return len(snapshot.ReadErrors) > 0 || len(snapshot.ParseErrors) > 0
}

// Dependencies wires the collaborators used by Indexer.
type Dependencies struct {
	FileSystem afero.Fs
	Discoverer ManifestDiscoverer
	Loader     DocumentLoader
	Logger     *zap.Logger
	Workers    int
}

// Indexer builds name and key indexes for a directory tree.
type Indexer struct {
	fileSystem afero.Fs
	discoverer ManifestDiscoverer
	loader     DocumentLoader
	logger     *zap.Logger
	workers    int
}

// NewIndexer constructs an Indexer, filling unset dependencies with defaults.
func NewIndexer(dependencies Dependencies) (*Indexer, error) {
	if dependencies.Discoverer == nil {
		return nil, ErrDiscovererNotConfigured
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

	return &Indexer{
		fileSystem: fileSystem,
		discoverer: dependencies.Discoverer,
		loader:     loader,
		logger:     logger,
		workers:    workers,
	}, nil
}

// Index discovers and loads every manifest beneath root. Unreadable files and malformed
// documents become findings on the Snapshot; only a failure to scan root itself is returned.
func (indexer *Indexer) Index(executionContext context.Context, root string) (Snapshot, error) {
	indexer.logger.Debug(indexingStartedMessageConstant, zap.String(rootFieldNameConstant, root))

	manifestPaths, readErrors, discoveryError := indexer.discoverer.DiscoverManifests(root)
	if discoveryError != nil {
		return Snapshot{}, fmt.Errorf(discoveryErrorTemplateConstant, discoveryError)
	}
	for _, readError := range readErrors {
		indexer.logger.Warn(unreadableDirectoryMessageConstant, zap.String(pathFieldNameConstant, readError.Path), zap.Error(readError.Cause))
	}

	builder := NewBuilder()
	var findingsMutex sync.Mutex
	var parseErrors []*manifest.ParseError

	workerGroup, groupContext := errgroup.WithContext(executionContext)
	workerGroup.SetLimit(indexer.workers)

	for _, manifestPath := range manifestPaths {
		workerGroup.Go(func() error {
			if contextError := groupContext.Err(); contextError != nil {
				return contextError
			}

			content, readError := afero.ReadFile(indexer.fileSystem, filepath.Join(root, filepath.FromSlash(manifestPath)))
			if readError != nil {
				indexer.logger.Warn(unreadableFileMessageConstant, zap.String(pathFieldNameConstant, manifestPath), zap.Error(readError))
				findingsMutex.Lock()
				readErrors = append(readErrors, discovery.ReadError{Path: manifestPath, Cause: readError})
				findingsMutex.Unlock()
				return nil
			}

			documents, loadError := indexer.loader.Load(manifestPath, content)
			builder.Add(documents...)
			if loadError == nil {
				return nil
			}

			var fileParseErrors manifest.ParseErrors
			if !errors.As(loadError, &fileParseErrors) {
				fileParseErrors = manifest.ParseErrors{{Path: manifestPath, Cause: loadError}}
			}
			for _, parseError := range fileParseErrors {
				indexer.logger.Warn(invalidDocumentMessageConstant,
					zap.String(pathFieldNameConstant, parseError.Path),
					zap.Int(segmentFieldNameConstant, parseError.SegmentIndex),
					zap.Error(parseError.Cause))
			}
			findingsMutex.Lock()
			parseErrors = append(parseErrors, fileParseErrors...)
			findingsMutex.Unlock()
			return nil
		})
	}

	if waitError := workerGroup.Wait(); waitError != nil {
		return Snapshot{}, waitError
	}

	sort.SliceStable(readErrors, func(leftIndex int, rightIndex int) bool {
		return readErrors[leftIndex].Path < readErrors[rightIndex].Path
	})
	sort.SliceStable(parseErrors, func(leftIndex int, rightIndex int) bool {
		if parseErrors[leftIndex].Path != parseErrors[rightIndex].Path {
			return parseErrors[leftIndex].Path < parseErrors[rightIndex].Path
		}
		return parseErrors[leftIndex].SegmentIndex < parseErrors[rightIndex].SegmentIndex
	})

	names, keys := builder.Build()
	snapshot := Snapshot{
		Root:          root,
		Names:         names,
		Keys:          keys,
		FileCount:     len(manifestPaths),
		DocumentCount: builder.DocumentCount(),
		ReadErrors:    readErrors,
		ParseErrors:   parseErrors,
	}

	indexer.logger.Debug(indexingCompletedMessageConstant,
		zap.String(rootFieldNameConstant, root),
		zap.Int(fileCountFieldNameConstant, snapshot.FileCount),
		zap.Int(documentCountFieldNameConstant, snapshot.DocumentCount),
		zap.Int(findingCountFieldNameConstant, len(readErrors)+len(parseErrors)))

	return snapshot, nil
}
