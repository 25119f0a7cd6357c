package manifest_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/flux-validator/internal/manifest"
)

const (
	testManifestPathConstant = "clusters/prod/apps/secret-sops.yml"
	testPrimaryKeyConstant   = "arn:aws:kms:eu-west-1:111122223333:key/primary"
	testSecondaryKeyConstant = "arn:aws:kms:eu-west-1:111122223333:key/secondary"
)

const encryptedSecretManifest = `apiVersion: v1
kind: Secret
metadata:
  name: database-credentials
  namespace: payments
data:
  password: ENC[AES256_GCM,data:abc,type:str]
sops:
  kms:
    - arn: arn:aws:kms:eu-west-1:111122223333:key/primary
      created_at: "2022-01-01T00:00:00Z"
    - arn: arn:aws:kms:eu-west-1:111122223333:key/secondary
    - arn: arn:aws:kms:eu-west-1:111122223333:key/primary
  version: 3.7.3
`

func TestLoaderLoadExtractsIdentityAndKeys(testInstance *testing.T) {
	loader := manifest.NewLoader()

	documents, loadError := loader.Load(testManifestPathConstant, []byte(encryptedSecretManifest))
	require.NoError(testInstance, loadError)
	require.Len(testInstance, documents, 1)

	document := documents[0]
	name, declared := document.DeclaredName()
	require.True(testInstance, declared)
	require.Equal(testInstance, "database-credentials", name)
	require.Equal(testInstance, "Secret", document.Kind)
	require.Equal(testInstance, "payments", document.Namespace)
	require.Equal(testInstance, testManifestPathConstant, document.SourcePath)
	require.Equal(testInstance, 0, document.SegmentIndex)
	require.Equal(testInstance, []string{testPrimaryKeyConstant, testSecondaryKeyConstant}, document.KMSARNs)
	require.True(testInstance, document.ReferencesKey(testSecondaryKeyConstant))
	require.True(testInstance, document.IsEncrypted())
}

func TestLoaderLoadScenarios(testInstance *testing.T) {
	testCases := []struct {
		name                string
		content             string
		expectedNames       []string
		expectedKeyCounts   []int
		expectedSegments    []int
		expectedParseErrors []int
	}{
		{
			name:              "multi_document_file",
			content:           "kind: Secret\nmetadata:\n  name: first\nsops:\n  kms:\n    - arn: arn:K1\n---\nkind: Secret\nmetadata:\n  name: second\nsops:\n  kms:\n    - arn: arn:K1\n",
			expectedNames:     []string{"first", "second"},
			expectedKeyCounts: []int{1, 1},
			expectedSegments:  []int{0, 1},
		},
		{
			name:              "leading_marker_and_end_marker",
			content:           "---\nkind: ConfigMap\nmetadata:\n  name: settings\n...\n",
			expectedNames:     []string{"settings"},
			expectedKeyCounts: []int{0},
			expectedSegments:  []int{0},
		},
		{
			name:              "missing_name_is_not_an_error",
			content:           "kind: Kustomization\nsops:\n  kms:\n    - arn: arn:K2\n",
			expectedNames:     []string{""},
			expectedKeyCounts: []int{1},
			expectedSegments:  []int{0},
		},
		{
			name:              "blank_name_treated_as_missing",
			content:           "kind: Secret\nmetadata:\n  name: \"  \"\n",
			expectedNames:     []string{""},
			expectedKeyCounts: []int{0},
			expectedSegments:  []int{0},
		},
		{
			name:              "comment_only_segment_keeps_numbering",
			content:           "# generated\n---\nkind: Secret\nmetadata:\n  name: after-comment\n",
			expectedNames:     []string{"after-comment"},
			expectedKeyCounts: []int{0},
			expectedSegments:  []int{1},
		},
		{
			name:                "malformed_segment_reported_and_others_kept",
			content:             "kind: Secret\nmetadata:\n  name: valid\n---\nkind: [unterminated\n---\nkind: Secret\nmetadata:\n  name: also-valid\n",
			expectedNames:       []string{"valid", "also-valid"},
			expectedKeyCounts:   []int{0, 0},
			expectedSegments:    []int{0, 2},
			expectedParseErrors: []int{1},
		},
		{
			name:              "yaml_directive_before_marker",
			content:           "%YAML 1.1\n---\nkind: Secret\nmetadata:\n  name: with-directive\nsops:\n  kms:\n    - arn: arn:K1\n",
			expectedNames:     []string{"with-directive"},
			expectedKeyCounts: []int{1},
			expectedSegments:  []int{0},
		},
		{
			name:              "directive_on_later_document",
			content:           "kind: Secret\nmetadata:\n  name: first\n...\n%TAG !flux! tag:fluxcd.io,2024:\n--- kind: Secret\nmetadata:\n  name: second\n",
			expectedNames:     []string{"first", "second"},
			expectedKeyCounts: []int{0, 0},
			expectedSegments:  []int{0, 1},
		},
		{
			name:              "unusual_kind_and_sops_values_tolerated",
			content:           "kind: {group: apps}\nmetadata:\n  name: odd-kind\nsops: true\n",
			expectedNames:     []string{"odd-kind"},
			expectedKeyCounts: []int{0},
			expectedSegments:  []int{0},
		},
		{
			name:                "malformed_kms_list_is_a_parse_error",
			content:             "kind: Secret\nmetadata:\n  name: broken-keys\nsops:\n  kms: arn:K1\n",
			expectedParseErrors: []int{0},
		},
		{
			name:                "non_mapping_document_is_a_parse_error",
			content:             "- just\n- a\n- list\n",
			expectedParseErrors: []int{0},
		},
		{
			name:    "empty_file",
			content: "\n\n",
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			documents, loadError := manifest.NewLoader().Load(testManifestPathConstant, []byte(testCase.content))

			if len(testCase.expectedParseErrors) == 0 {
				require.NoError(testInstance, loadError)
			} else {
				var parseErrors manifest.ParseErrors
				require.True(testInstance, errors.As(loadError, &parseErrors))
				segmentIndexes := make([]int, 0, len(parseErrors))
				for _, parseError := range parseErrors {
					require.Equal(testInstance, testManifestPathConstant, parseError.Path)
					segmentIndexes = append(segmentIndexes, parseError.SegmentIndex)
				}
				require.Equal(testInstance, testCase.expectedParseErrors, segmentIndexes)

				var singleParseError *manifest.ParseError
				require.True(testInstance, errors.As(loadError, &singleParseError))
			}

			require.Len(testInstance, documents, len(testCase.expectedNames))
			for documentIndex, document := range documents {
				name, _ := document.DeclaredName()
				require.Equal(testInstance, testCase.expectedNames[documentIndex], name)
				require.Len(testInstance, document.KMSARNs, testCase.expectedKeyCounts[documentIndex])
				require.Equal(testInstance, testCase.expectedSegments[documentIndex], document.SegmentIndex)
				require.Equal(testInstance, testManifestPathConstant, document.SourcePath)
			}
		})
	}
}

func TestSplitSegmentsHandlesInlineMarkerContent(testInstance *testing.T) {
	segments := manifest.SplitSegments([]byte("--- kind: Secret\n---\nkind: ConfigMap\n"))
	require.Len(testInstance, segments, 2)
	require.Equal(testInstance, "kind: Secret\n", string(segments[0]))
	require.Equal(testInstance, "kind: ConfigMap\n", string(segments[1]))
}

func TestSplitSegmentsKeepsDirectivesWithTheirDocument(testInstance *testing.T) {
	segments := manifest.SplitSegments([]byte("%YAML 1.1\n---\nkind: Secret\n---\nkind: ConfigMap\n"))
	require.Len(testInstance, segments, 2)
	require.Equal(testInstance, "%YAML 1.1\n---\nkind: Secret\n", string(segments[0]))
	require.Equal(testInstance, "kind: ConfigMap\n", string(segments[1]))
}

func TestAnyReferencesKey(testInstance *testing.T) {
	documents := []manifest.Document{
		{KMSARNs: []string{testPrimaryKeyConstant}},
		{},
	}
	require.True(testInstance, manifest.AnyReferencesKey(documents, testPrimaryKeyConstant))
	require.False(testInstance, manifest.AnyReferencesKey(documents, testSecondaryKeyConstant))
}
