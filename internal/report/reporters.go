package report

import (
	"fmt"
	"sort"

	"github.com/temirov/flux-validator/internal/discovery"
	"github.com/temirov/flux-validator/internal/index"
	"github.com/temirov/flux-validator/internal/manifest"
	"github.com/temirov/flux-validator/internal/rotation"
	"github.com/temirov/flux-validator/internal/tree"
)

// Section headers and empty-section messages shared with callers and tests.
const (
	DuplicateSectionHeader = "Duped names"
	KeyUsageSectionHeader  = "kms keys used"
	FindingsSectionHeader  = "Invalid manifests"
	NoDuplicatesMessage    = "No duplicate names found"
	NoKeysMessage          = "No kms keys found"
)

const (
	noFilesRotatedMessageConstant  = "No files rotated"
	rotationHeaderTemplateConstant = "Rotation %s -> %s"
	repeatedPathTemplateConstant   = "%s (document %d)"
	readFindingTemplateConstant    = "unreadable: %v"
	parseFindingTemplateConstant   = "document %d: %v"
	failureLeafTemplateConstant    = "%s: %v"
	succeededBranchLabelConstant   = "succeeded"
	failedBranchLabelConstant      = "failed"
)

// DuplicateReporter lists names declared by more than one document.
type DuplicateReporter struct{}

// Report builds the duplicate names section. Leaves are document paths; a path declaring
// the same name more than once is qualified with the document index.
func (DuplicateReporter) Report(names index.NameIndex) Section {
	grouping := make(map[string][]string)
	for name, documents := range names.Duplicates() {
		pathCounts := make(map[string]int, len(documents))
		for _, document := range documents {
			pathCounts[document.SourcePath]++
		}
		leaves := make([]string, 0, len(documents))
		for _, document := range documents {
			leaf := document.SourcePath
			if pathCounts[document.SourcePath] > 1 {
				leaf = fmt.Sprintf(repeatedPathTemplateConstant, document.SourcePath, document.SegmentIndex)
			}
			leaves = append(leaves, leaf)
		}
		grouping[name] = leaves
	}

	return Section{
		Header:       DuplicateSectionHeader,
		Nodes:        tree.FromGrouping(grouping),
		EmptyMessage: NoDuplicatesMessage,
	}
}

// KeyUsageReporter lists every KMS key with the files it protects.
type KeyUsageReporter struct{}

// Report builds the key usage section, including keys used by a single file.
func (KeyUsageReporter) Report(keys index.KeyIndex) Section {
	grouping := make(map[string][]string, len(keys))
	for keyARN, paths := range keys {
		grouping[keyARN] = paths
	}

	return Section{
		Header:       KeyUsageSectionHeader,
		Nodes:        tree.FromGrouping(grouping),
		EmptyMessage: NoKeysMessage,
	}
}

// FindingsReporter lists files that could not be read and documents that could not be parsed.
type FindingsReporter struct{}

// Report builds the findings section. The section is omitted when there is nothing to report.
func (FindingsReporter) Report(readErrors []discovery.ReadError, parseErrors []*manifest.ParseError) Section {
	grouping := make(map[string][]string)
	for _, readError := range readErrors {
		grouping[readError.Path] = append(grouping[readError.Path], fmt.Sprintf(readFindingTemplateConstant, readError.Cause))
	}
	for _, parseError := range parseErrors {
		grouping[parseError.Path] = append(grouping[parseError.Path], fmt.Sprintf(parseFindingTemplateConstant, parseError.SegmentIndex, parseError.Cause))
	}

	return Section{
		Header:   FindingsSectionHeader,
		Nodes:    tree.FromGrouping(grouping),
		Optional: true,
	}
}

// RotationReporter summarizes the outcome of a rotation run.
type RotationReporter struct{}

// Report builds a section with succeeded and failed branches; empty branches are left out.
func (RotationReporter) Report(result rotation.Result) Section {
	var nodes []tree.Node

	if len(result.Succeeded) > 0 {
		succeeded := append([]string(nil), result.Succeeded...)
		sort.Strings(succeeded)
		leaves := make([]tree.Node, 0, len(succeeded))
		for _, path := range succeeded {
			leaves = append(leaves, tree.Leaf(path))
		}
		nodes = append(nodes, tree.Branch(succeededBranchLabelConstant, leaves...))
	}

	if len(result.Failed) > 0 {
		failed := append([]*rotation.RotationFailure(nil), result.Failed...)
		sort.Slice(failed, func(leftIndex int, rightIndex int) bool {
			return failed[leftIndex].Path < failed[rightIndex].Path
		})
		leaves := make([]tree.Node, 0, len(failed))
		for _, failure := range failed {
			leaves = append(leaves, tree.Leaf(fmt.Sprintf(failureLeafTemplateConstant, failure.Path, failure.Cause)))
		}
		nodes = append(nodes, tree.Branch(failedBranchLabelConstant, leaves...))
	}

	return Section{
		Header:       fmt.Sprintf(rotationHeaderTemplateConstant, result.OldKey, result.NewKey),
		Nodes:        nodes,
		EmptyMessage: noFilesRotatedMessageConstant,
	}
}
