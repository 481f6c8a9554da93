package pty

import "io"

// Handle abstracts PTY operations across Unix and Windows.
// On Unix it wraps a creack/pty master (*os.File); on Windows it wraps a
// ConPTY pseudo-console.
type Handle interface {
	io.ReadWriteCloser
	// Resize changes the PTY window size.
	Resize(cols, rows uint16) error
}
