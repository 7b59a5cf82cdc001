//go:build !linux

// Package linux provides the hardware platform for Linux single-board
// computers. On other systems it registers nothing.
package linux
