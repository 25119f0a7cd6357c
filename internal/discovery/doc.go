// Package discovery locates manifest files beneath a scan root without following symlinks.
package discovery
