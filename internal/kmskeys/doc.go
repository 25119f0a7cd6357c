// Package kmskeys validates AWS KMS key ARNs and checks that a key is usable before rotation.
package kmskeys
