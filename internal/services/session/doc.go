// Package session runs one encrypted chat session between two peers.
//
// A Session plays exactly one role. As listener it binds, accepts a single
// connection and closes the listener; as initiator it dials. Either way one
// background goroutine drives the handshake and then the receive loop, while
// SendText and SendFile may be called from any goroutine once the session is
// Connected.
//
// # Lifecycle
//
//	Idle -> Listening|Connecting -> Authenticating -> Connected -> Closed
//
// Host.OnConnected fires when the handshake succeeds and Host.OnDisconnected
// fires exactly once afterwards. A session that never connects reports its
// failure through Host.Log and Wait.
//
// # Frames
//
// Frame writes are serialised so concurrent senders never interleave bytes.
// Every received frame body is consumed in full before the next header is
// read. Oversized frames and frames that fail to decrypt, parse or store are
// logged and dropped; the loop continues. Transport errors, unknown frame
// types and negative lengths end the session.
package session
