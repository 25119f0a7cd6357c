// Package ui turns sops lifecycle events into concise console messages for
// operators watching a rotation run.
package ui
