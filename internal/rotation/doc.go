// Package rotation moves encrypted manifests from one KMS key to another.
//
// A Plan is computed from the current key index and executed by a Coordinator, which
// re-reads each target, re-encrypts it through a Reencryptor and atomically replaces the
// file. Failures are isolated per file and collected into a Result.
package rotation
