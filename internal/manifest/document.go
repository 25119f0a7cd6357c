package manifest

// Document is a single YAML document parsed from a manifest file.
type Document struct {
	// Name is metadata.name; nil when the manifest does not declare one.
	Name         *string
	Kind         string
	Namespace    string
	SourcePath   string
	SegmentIndex int
	// KMSARNs lists sops.kms[].arn in declaration order without duplicates.
	KMSARNs []string
}

// DeclaredName returns the document name and whether one was declared.
func (document Document) DeclaredName() (string, bool) {
	if document.Name == nil {
		return "", false
	}
	return *document.Name, true
}

// ReferencesKey reports whether the document's sops metadata lists the key ARN.
func (document Document) ReferencesKey(keyARN string) bool {
	for _, candidate := range document.KMSARNs {
		if candidate == keyARN {
			return true
		}
	}
	return false
}

// IsEncrypted reports whether the document carries any KMS key reference.
func (document Document) IsEncrypted() bool {
	return len(document.KMSARNs) > 0
}

// AnyReferencesKey reports whether any of the documents reference the key ARN.
func AnyReferencesKey(documents []Document, keyARN string) bool {
	for _, document := range documents {
		if document.ReferencesKey(keyARN) {
			return true
		}
	}
	return false
}
