// Package index groups manifest documents by declared name and by the KMS keys protecting them.
//
// Builder performs the bucketing without I/O; Indexer walks a directory tree, loads files with
// bounded parallelism and records unreadable or malformed manifests as findings.
package index
