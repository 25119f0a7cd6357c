// Package tree renders grouped labels as text trees.
package tree
