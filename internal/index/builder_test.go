package index_test

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/flux-validator/internal/index"
	"github.com/temirov/flux-validator/internal/manifest"
)

const (
	firstKeyConstant          = "arn:K1"
	secondKeyConstant         = "arn:K2"
	sharedNameConstant        = "foo"
	firstFilePathConstant     = "a.yml"
	secondFilePathConstant    = "b.yml"
	multiDocumentPathConstant = "c.yml"
	permutationSeedConstant   = 42
	permutationRoundsConstant = 20
)

func namedDocument(name string, sourcePath string, segmentIndex int, keyARNs ...string) manifest.Document {
	document := manifest.Document{SourcePath: sourcePath, SegmentIndex: segmentIndex, KMSARNs: keyARNs}
	if len(name) > 0 {
		declaredName := name
		document.Name = &declaredName
	}
	return document
}

func documentPaths(documents []manifest.Document) []string {
	paths := make([]string, 0, len(documents))
	for _, document := range documents {
		paths = append(paths, document.SourcePath)
	}
	sort.Strings(paths)
	return paths
}

func TestBuilderIndexesSharedNamesAcrossKeys(testInstance *testing.T) {
	builder := index.NewBuilder()
	builder.Add(
		namedDocument(sharedNameConstant, firstFilePathConstant, 0, firstKeyConstant),
		namedDocument(sharedNameConstant, secondFilePathConstant, 0, secondKeyConstant),
	)

	names, keys := builder.Build()
	duplicates := names.Duplicates()
	require.Equal(testInstance, []string{sharedNameConstant}, duplicates.Names())
	require.Equal(testInstance, []string{firstFilePathConstant, secondFilePathConstant}, documentPaths(duplicates[sharedNameConstant]))

	require.Equal(testInstance, []string{firstKeyConstant, secondKeyConstant}, keys.Keys())
	require.Equal(testInstance, []string{firstFilePathConstant}, keys.Paths(firstKeyConstant))
	require.Equal(testInstance, []string{secondFilePathConstant}, keys.Paths(secondKeyConstant))
	require.Equal(testInstance, 2, builder.DocumentCount())
}

func TestBuilderListsMultiDocumentFileOncePerKey(testInstance *testing.T) {
	builder := index.NewBuilder()
	builder.Add(
		namedDocument("first", multiDocumentPathConstant, 0, firstKeyConstant),
		namedDocument("second", multiDocumentPathConstant, 1, firstKeyConstant, secondKeyConstant),
	)

	names, keys := builder.Build()
	require.Empty(testInstance, names.Duplicates())
	require.Equal(testInstance, []string{multiDocumentPathConstant}, keys.Paths(firstKeyConstant))
	require.Equal(testInstance, []string{multiDocumentPathConstant}, keys.Paths(secondKeyConstant))
}

func TestBuilderNamelessDocumentsAreNeverDuplicates(testInstance *testing.T) {
	builder := index.NewBuilder()
	builder.Add(
		namedDocument("", firstFilePathConstant, 0, firstKeyConstant),
		namedDocument("", secondFilePathConstant, 0, firstKeyConstant),
	)

	names, keys := builder.Build()
	require.Empty(testInstance, names)
	require.Empty(testInstance, names.Duplicates())
	require.Equal(testInstance, []string{firstFilePathConstant, secondFilePathConstant}, keys.Paths(firstKeyConstant))
}

func TestBuilderBuildReturnsCopies(testInstance *testing.T) {
	builder := index.NewBuilder()
	builder.Add(namedDocument(sharedNameConstant, firstFilePathConstant, 0, firstKeyConstant))

	_, keys := builder.Build()
	keys[firstKeyConstant][0] = "mutated.yml"

	_, rebuiltKeys := builder.Build()
	require.Equal(testInstance, []string{firstFilePathConstant}, rebuiltKeys.Paths(firstKeyConstant))
}

func TestBuilderIsOrderIndependent(testInstance *testing.T) {
	documents := []manifest.Document{
		namedDocument(sharedNameConstant, firstFilePathConstant, 0, firstKeyConstant),
		namedDocument(sharedNameConstant, secondFilePathConstant, 0, secondKeyConstant),
		namedDocument("bar", multiDocumentPathConstant, 0, firstKeyConstant),
		namedDocument("baz", multiDocumentPathConstant, 1, firstKeyConstant),
		namedDocument("bar", "d.yml", 0),
		namedDocument("", "e.yml", 0, secondKeyConstant, firstKeyConstant),
	}

	referenceBuilder := index.NewBuilder()
	referenceBuilder.Add(documents...)
	referenceNames, referenceKeys := referenceBuilder.Build()

	randomSource := rand.New(rand.NewSource(permutationSeedConstant))
	for round := 0; round < permutationRoundsConstant; round++ {
		permuted := append([]manifest.Document(nil), documents...)
		randomSource.Shuffle(len(permuted), func(leftIndex int, rightIndex int) {
			permuted[leftIndex], permuted[rightIndex] = permuted[rightIndex], permuted[leftIndex]
		})

		builder := index.NewBuilder()
		builder.Add(permuted...)
		names, keys := builder.Build()

		require.Equal(testInstance, referenceNames.Names(), names.Names())
		for _, name := range referenceNames.Names() {
			require.Equal(testInstance, documentPaths(referenceNames[name]), documentPaths(names[name]))
		}
		require.Equal(testInstance, referenceKeys.Keys(), keys.Keys())
		for _, keyARN := range referenceKeys.Keys() {
			require.Equal(testInstance, referenceKeys.Paths(keyARN), keys.Paths(keyARN))
		}
	}
}

func TestBuilderConcurrentAddsLoseNothing(testInstance *testing.T) {
	const workerCount = 8
	const documentsPerWorker = 50

	builder := index.NewBuilder()
	var waitGroup sync.WaitGroup
	for workerIndex := 0; workerIndex < workerCount; workerIndex++ {
		waitGroup.Add(1)
		go func(workerIndex int) {
			defer waitGroup.Done()
			for documentIndex := 0; documentIndex < documentsPerWorker; documentIndex++ {
				sourcePath := fmt.Sprintf("worker-%d/document-%d.yml", workerIndex, documentIndex)
				builder.Add(namedDocument(sharedNameConstant, sourcePath, 0, firstKeyConstant))
			}
		}(workerIndex)
	}
	waitGroup.Wait()

	names, keys := builder.Build()
	require.Len(testInstance, names[sharedNameConstant], workerCount*documentsPerWorker)
	require.Len(testInstance, keys.Paths(firstKeyConstant), workerCount*documentsPerWorker)
}
