package types

import (
	"time"

	"github.com/google/uuid"
)

// ChatMessage is one decoded text line.
type ChatMessage struct {
	Sender string
	Time   time.Time // wall clock, second precision
	Text   string    // already sanitised
}

// Direction labels a file event for display.
type Direction string

const (
	DirectionSending  Direction = "Sending"
	DirectionReceived Direction = "Received"
)

// FileEvent reports a file leaving or arriving.
type FileEvent struct {
	TransferID uuid.UUID
	Name       string
	Direction  Direction
	Path       string // local path; empty for outgoing files read from a stream
	Size       int64  // plaintext bytes
	FromPeer   bool
}
