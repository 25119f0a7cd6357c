package manifest

import (
	"bufio"
	"bytes"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	documentStartMarkerConstant = "---"
	documentEndMarkerConstant   = "..."
	directivePrefixConstant     = "%"
	yamlNullTagConstant         = "!!null"
)

// manifestEnvelope holds kind and sops as raw nodes: values of an unexpected
// shape there do not hide the document name.
type manifestEnvelope struct {
	Kind     yaml.Node         `yaml:"kind"`
	Metadata *metadataEnvelope `yaml:"metadata"`
	Sops     yaml.Node         `yaml:"sops"`
}

type metadataEnvelope struct {
	Name      string `yaml:"name"`
	Namespace string `yaml:"namespace"`
}

type sopsEnvelope struct {
	KMS []kmsKeyEnvelope `yaml:"kms"`
}

type kmsKeyEnvelope struct {
	ARN string `yaml:"arn"`
}

// Loader turns manifest file content into Documents.
type Loader struct{}

// NewLoader constructs a Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses every YAML document in content. Documents from well-formed
// segments are returned even when other segments fail; the failures are
// reported together as ParseErrors.
func (loader *Loader) Load(path string, content []byte) ([]Document, error) {
	var documents []Document
	var parseErrors ParseErrors

	for segmentIndex, segment := range SplitSegments(content) {
		document, present, decodeError := decodeSegment(segment)
		if decodeError != nil {
			parseErrors = append(parseErrors, &ParseError{Path: path, SegmentIndex: segmentIndex, Cause: decodeError})
			continue
		}
		if !present {
			continue
		}
		document.SourcePath = path
		document.SegmentIndex = segmentIndex
		documents = append(documents, document)
	}

	if len(parseErrors) > 0 {
		return documents, parseErrors
	}
	return documents, nil
}

// SplitSegments splits content on YAML document markers. Segments holding only
// whitespace are dropped; comment-only segments are kept so that segment
// indexes match what an operator counts in the file. Directive lines such as
// %YAML belong to the document that follows them, together with its marker.
func SplitSegments(content []byte) [][]byte {
	var segments [][]byte
	var current bytes.Buffer
	var directives bytes.Buffer

	flush := func() {
		if len(bytes.TrimSpace(current.Bytes())) > 0 {
			segment := make([]byte, current.Len())
			copy(segment, current.Bytes())
			segments = append(segments, segment)
		}
		current.Reset()
	}

	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), len(content)+1)
	for scanner.Scan() {
		line := scanner.Text()
		trimmedLine := strings.TrimRight(line, " \t\r")

		switch {
		case strings.HasPrefix(line, directivePrefixConstant):
			directives.WriteString(line)
			directives.WriteByte('\n')
			continue
		case trimmedLine == documentStartMarkerConstant:
			flush()
			startDocument(&current, &directives)
			continue
		case strings.HasPrefix(trimmedLine, documentStartMarkerConstant+" "), strings.HasPrefix(trimmedLine, documentStartMarkerConstant+"\t"):
			flush()
			startDocument(&current, &directives)
			line = strings.TrimLeft(trimmedLine[len(documentStartMarkerConstant):], " \t")
		case trimmedLine == documentEndMarkerConstant:
			flush()
			continue
		}

		current.WriteString(line)
		current.WriteByte('\n')
	}
	current.Write(directives.Bytes())
	flush()

	return segments
}

// startDocument moves pending directives into the new segment. The decoder needs the
// explicit start marker after directives.
func startDocument(current *bytes.Buffer, directives *bytes.Buffer) {
	if directives.Len() == 0 {
		return
	}
	current.Write(directives.Bytes())
	current.WriteString(documentStartMarkerConstant)
	current.WriteByte('\n')
	directives.Reset()
}

func decodeSegment(segment []byte) (Document, bool, error) {
	var rootNode yaml.Node
	if unmarshalError := yaml.Unmarshal(segment, &rootNode); unmarshalError != nil {
		return Document{}, false, unmarshalError
	}
	if len(rootNode.Content) == 0 {
		return Document{}, false, nil
	}
	if contentNode := rootNode.Content[0]; contentNode.Kind == yaml.ScalarNode && contentNode.Tag == yamlNullTagConstant {
		return Document{}, false, nil
	}

	var envelope manifestEnvelope
	if decodeError := rootNode.Decode(&envelope); decodeError != nil {
		return Document{}, false, decodeError
	}

	document, documentError := envelope.document()
	if documentError != nil {
		return Document{}, false, documentError
	}
	return document, true, nil
}

func (envelope manifestEnvelope) document() (Document, error) {
	var document Document
	if envelope.Kind.Kind == yaml.ScalarNode && envelope.Kind.Tag != yamlNullTagConstant {
		document.Kind = strings.TrimSpace(envelope.Kind.Value)
	}

	if envelope.Metadata != nil {
		if name := strings.TrimSpace(envelope.Metadata.Name); len(name) > 0 {
			document.Name = &name
		}
		document.Namespace = strings.TrimSpace(envelope.Metadata.Namespace)
	}

	if envelope.Sops.Kind == yaml.MappingNode {
		var sops sopsEnvelope
		if decodeError := envelope.Sops.Decode(&sops); decodeError != nil {
			return Document{}, decodeError
		}
		seen := make(map[string]struct{}, len(sops.KMS))
		for _, kmsKey := range sops.KMS {
			keyARN := strings.TrimSpace(kmsKey.ARN)
			if len(keyARN) == 0 {
				continue
			}
			if _, duplicate := seen[keyARN]; duplicate {
				continue
			}
			seen[keyARN] = struct{}{}
			document.KMSARNs = append(document.KMSARNs, keyARN)
		}
	}

	return document, nil
}
