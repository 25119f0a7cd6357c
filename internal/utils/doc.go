// Package utils holds the ambient plumbing shared by the command line: Viper-backed
// configuration loading, zap logger construction, and an output writer that flushes
// report sections as they are produced.
package utils
