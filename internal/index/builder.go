package index

import (
	"sort"
	"sync"

	"github.com/temirov/flux-validator/internal/manifest"
)

// NameIndex groups documents by their declared metadata.name.
type NameIndex map[string][]manifest.Document

// KeyIndex maps each KMS key ARN to the distinct files whose documents reference it.
type KeyIndex map[string][]string

// Duplicates returns the names declared by two or more documents.
func (names NameIndex) Duplicates() NameIndex {
	duplicates := make(NameIndex)
	for name, documents := range names {
		if len(documents) < 2 {
			continue
		}
		duplicates[name] = append([]manifest.Document(nil), documents...)
	}
	return duplicates
}

// Names returns the indexed names in lexical order.
func (names NameIndex) Names() []string {
	sortedNames := make([]string, 0, len(names))
	for name := range names {
		sortedNames = append(sortedNames, name)
	}
	sort.Strings(sortedNames)
	return sortedNames
}

// Keys returns the indexed key ARNs in lexical order.
func (keys KeyIndex) Keys() []string {
	sortedKeys := make([]string, 0, len(keys))
	for keyARN := range keys {
		sortedKeys = append(sortedKeys, keyARN)
	}
	sort.Strings(sortedKeys)
	return sortedKeys
}

// Paths returns the files referencing the key ARN in lexical order.
func (keys KeyIndex) Paths(keyARN string) []string {
	paths := append([]string(nil), keys[keyARN]...)
	sort.Strings(paths)
	return paths
}

// Builder accumulates documents into name and key indexes. It is safe for concurrent use.
type Builder struct {
	mutex        sync.Mutex
	names        NameIndex
	keys         KeyIndex
	keyPathSets  map[string]map[string]struct{}
	documentSeen int
}

// NewBuilder constructs an empty Builder.
func NewBuilder() *Builder {
	return &Builder{
		names:       make(NameIndex),
		keys:        make(KeyIndex),
		keyPathSets: make(map[string]map[string]struct{}),
	}
}

// Add records documents. Nameless documents contribute to the key index only;
// a file is listed at most once per key no matter how many of its documents reference it.
func (builder *Builder) Add(documents ...manifest.Document) {
	builder.mutex.Lock()
	defer builder.mutex.Unlock()

	for _, document := range documents {
		builder.documentSeen++

		if name, declared := document.DeclaredName(); declared {
			builder.names[name] = append(builder.names[name], document)
		}

		for _, keyARN := range document.KMSARNs {
			pathSet, exists := builder.keyPathSets[keyARN]
			if !exists {
				pathSet = make(map[string]struct{})
				builder.keyPathSets[keyARN] = pathSet
			}
			if _, recorded := pathSet[document.SourcePath]; recorded {
				continue
			}
			pathSet[document.SourcePath] = struct{}{}
			builder.keys[keyARN] = append(builder.keys[keyARN], document.SourcePath)
		}
	}
}

// DocumentCount reports how many documents were added.
func (builder *Builder) DocumentCount() int {
	builder.mutex.Lock()
	defer builder.mutex.Unlock()
	return builder.documentSeen
}

// Build returns copies of the accumulated indexes.
func (builder *Builder) Build() (NameIndex, KeyIndex) {
	builder.mutex.Lock()
	defer builder.mutex.Unlock()

	names := make(NameIndex, len(builder.names))
	for name, documents := range builder.names {
		names[name] = append([]manifest.Document(nil), documents...)
	}

	keys := make(KeyIndex, len(builder.keys))
	for keyARN, paths := range builder.keys {
		keys[keyARN] = append([]string(nil), paths...)
	}

	return names, keys
}
