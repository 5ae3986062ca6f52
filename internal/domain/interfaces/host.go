package interfaces

import domaintypes "peerchat/internal/domain/types"

// Host receives session notifications. Methods are called from the session's
// receive goroutine and from whichever goroutine invoked a send, so
// implementations must be safe for concurrent use and should return quickly.
type Host interface {
	// OnConnected fires once, after the handshake succeeds.
	OnConnected(peer string)
	// OnDisconnected fires once for a session that reached Connected. err is
	// nil after a local Close.
	OnDisconnected(err error)
	OnText(msg domaintypes.ChatMessage, fromPeer bool)
	OnFile(ev domaintypes.FileEvent)
	// Log carries user-facing status lines, including non-fatal frame errors.
	Log(msg string)
}
