package interfaces

import "io"

// FileStore persists received files.
type FileStore interface {
	// Create opens a pending file for an already sanitised name.
	Create(name string) (PendingFile, error)
}

// PendingFile is an incoming file that becomes visible only on Commit.
type PendingFile interface {
	io.Writer
	// Commit publishes the file and returns its final path.
	Commit() (string, error)
	// Abort discards the partial file. Calling it after Commit is a no-op.
	Abort() error
}
