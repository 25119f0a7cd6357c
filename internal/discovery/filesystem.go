package discovery

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

const (
	gitMetadataDirectoryNameConstant    = ".git"
	yamlPatternConstant                 = "*.yml"
	yamlLongPatternConstant             = "*.yaml"
	rootInspectionErrorTemplateConstant = "unable to inspect scan root %s: %w"
	rootNotDirectoryTemplateConstant    = "%w: %s"
	rootListingErrorTemplateConstant    = "unable to list scan root %s: %w"
	invalidPatternErrorTemplateConstant = "invalid manifest pattern %q: %w"
	readErrorTemplateConstant           = "%s: %v"
)

// ErrRootNotDirectory indicates the scan root exists but is not a directory.
var ErrRootNotDirectory = errors.New("scan root is not a directory")

// DefaultPatterns lists the file name globs matched when none are configured.
func DefaultPatterns() []string {
	return []string{yamlPatternConstant, yamlLongPatternConstant}
}

// DefaultSkipDirectories lists the directory names pruned when none are configured.
func DefaultSkipDirectories() []string {
	return []string{gitMetadataDirectoryNameConstant}
}

// ReadError records a path that could not be listed or read during a scan.
type ReadError struct {
	Path  string
	Cause error
}

func (readError ReadError) Error() string {
	return fmt.Sprintf(readErrorTemplateConstant, readError.Path, readError.Cause)
}

func (readError ReadError) Unwrap() error {
	return readError.Cause
}

// FilesystemManifestDiscoverer locates manifest files beneath a root directory.
type FilesystemManifestDiscoverer struct {
	fileSystem      afero.Fs
	patterns        []string
	skipDirectories map[string]struct{}
}

// NewFilesystemManifestDiscoverer constructs a discoverer. Empty pattern or skip lists fall back to the defaults.
func NewFilesystemManifestDiscoverer(fileSystem afero.Fs, patterns []string, skipDirectories []string) (*FilesystemManifestDiscoverer, error) {
	if fileSystem == nil {
		fileSystem = afero.NewOsFs()
	}

	normalizedPatterns := normalizeList(patterns)
	if len(normalizedPatterns) == 0 {
		normalizedPatterns = DefaultPatterns()
	}
	for _, pattern := range normalizedPatterns {
		if _, matchError := path.Match(pattern, ""); matchError != nil {
			return nil, fmt.Errorf(invalidPatternErrorTemplateConstant, pattern, matchError)
		}
	}

	normalizedSkipDirectories := normalizeList(skipDirectories)
	if len(normalizedSkipDirectories) == 0 {
		normalizedSkipDirectories = DefaultSkipDirectories()
	}
	skipSet := make(map[string]struct{}, len(normalizedSkipDirectories))
	for _, directoryName := range normalizedSkipDirectories {
		skipSet[directoryName] = struct{}{}
	}

	return &FilesystemManifestDiscoverer{
		fileSystem:      fileSystem,
		patterns:        normalizedPatterns,
		skipDirectories: skipSet,
	}, nil
}

// DiscoverManifests walks root and returns matching files as slash separated paths relative to root.
// Entries are visited in lexical order and the files of a directory precede those of its
// sub-directories. Sub-directories that cannot be listed are returned as ReadError findings.
func (discoverer *FilesystemManifestDiscoverer) DiscoverManifests(root string) ([]string, []ReadError, error) {
	rootInfo, statError := discoverer.fileSystem.Stat(root)
	if statError != nil {
		return nil, nil, fmt.Errorf(rootInspectionErrorTemplateConstant, root, statError)
	}
	if !rootInfo.IsDir() {
		return nil, nil, fmt.Errorf(rootNotDirectoryTemplateConstant, ErrRootNotDirectory, root)
	}

	rootEntries, listError := afero.ReadDir(discoverer.fileSystem, root)
	if listError != nil {
		return nil, nil, fmt.Errorf(rootListingErrorTemplateConstant, root, listError)
	}

	var manifests []string
	var readErrors []ReadError

	// Directories are pushed in reverse so they pop in lexical order.
	pendingDirectories := discoverer.visitEntries("", rootEntries, &manifests, nil)
	for len(pendingDirectories) > 0 {
		lastIndex := len(pendingDirectories) - 1
		relativeDirectory := pendingDirectories[lastIndex]
		pendingDirectories = pendingDirectories[:lastIndex]

		entries, readDirectoryError := afero.ReadDir(discoverer.fileSystem, filepath.Join(root, filepath.FromSlash(relativeDirectory)))
		if readDirectoryError != nil {
			readErrors = append(readErrors, ReadError{Path: relativeDirectory, Cause: readDirectoryError})
			continue
		}
		pendingDirectories = discoverer.visitEntries(relativeDirectory, entries, &manifests, pendingDirectories)
	}

	return manifests, readErrors, nil
}

func (discoverer *FilesystemManifestDiscoverer) visitEntries(relativeDirectory string, entries []os.FileInfo, manifests *[]string, pendingDirectories []string) []string {
	sort.Slice(entries, func(leftIndex int, rightIndex int) bool {
		return entries[leftIndex].Name() < entries[rightIndex].Name()
	})

	var childDirectories []string
	for _, entry := range entries {
		if entry.Mode()&os.ModeSymlink != 0 {
			continue
		}
		entryPath := path.Join(relativeDirectory, entry.Name())
		if entry.IsDir() {
			if _, skipped := discoverer.skipDirectories[entry.Name()]; skipped {
				continue
			}
			childDirectories = append(childDirectories, entryPath)
			continue
		}
		if !entry.Mode().IsRegular() {
			continue
		}
		if discoverer.matches(entry.Name()) {
			*manifests = append(*manifests, entryPath)
		}
	}

	for childIndex := len(childDirectories) - 1; childIndex >= 0; childIndex-- {
		pendingDirectories = append(pendingDirectories, childDirectories[childIndex])
	}
	return pendingDirectories
}

func (discoverer *FilesystemManifestDiscoverer) matches(fileName string) bool {
	for _, pattern := range discoverer.patterns {
		if matched, _ := path.Match(pattern, fileName); matched {
			return true
		}
	}
	return false
}

func normalizeList(values []string) []string {
	normalized := make([]string, 0, len(values))
	for _, value := range values {
		trimmedValue := strings.TrimSpace(value)
		if len(trimmedValue) == 0 {
			continue
		}
		normalized = append(normalized, trimmedValue)
	}
	return normalized
}
