// Package report turns indexes, findings and rotation results into titled text tree sections.
package report
