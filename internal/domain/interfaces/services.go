package interfaces

import (
	"context"
	"io"
)

// Chat is the send side of a live session as seen by a host.
type Chat interface {
	SendText(text string) error
	SendFile(ctx context.Context, name string, src io.Reader, size int64) error
	Close() error
	Done() <-chan struct{}
}
