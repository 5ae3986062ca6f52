// Package handshake authenticates a freshly opened stream with the shared
// token and exchanges display names.
//
// # Flow
//
// Listener (Accept):
//  1. Read the peer's token and compare it with the local token.
//  2. On mismatch send the rejection string and return ErrRejected.
//  3. On match send the acknowledgement "Connected".
//  4. Read the peer name, then send the local name.
//
// Initiator (Dial):
//  1. Send the token.
//  2. Read the response; anything but "Connected" is ErrRejected.
//  3. Send the local name, then read the peer name.
//
// All strings use the wire package's uint16 length prefix. The package never
// touches keys: both sides derive the session key from the token afterwards.
// Deadlines are the caller's concern.
package handshake
