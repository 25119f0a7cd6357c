// Package cli constructs the flux-validator command line: a single Cobra root
// command that loads Viper configuration, builds the zap logger, indexes a
// manifest tree, prints the duplicate name and KMS key usage reports, and
// optionally rotates SOPS-encrypted manifests to a new KMS key. Run outcomes are
// reported to main through ExitError.
package cli
