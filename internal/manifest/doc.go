// Package manifest parses Flux manifest files into typed documents.
//
// A file may hold several YAML documents separated by "---" markers. Each
// document yields its metadata.name and the KMS key ARNs listed in its sops
// metadata; malformed documents are reported as ParseError values.
package manifest
