// Package wire encodes the framed byte stream exchanged by two peers.
//
// # Strings
//
// Handshake fields and file names are written as a big-endian uint16 byte
// length followed by UTF-8 bytes (at most 65535 bytes).
//
// # Frames
//
// Every frame starts with a big-endian int32 type.
//
//	text: int32(1) | int32 length | payload
//	file: int32(2) | string name  | int64 length | payload
//
// Payloads are opaque here; the session layer encrypts them.
//
// # Errors
//
// ErrUnknownFrame and ErrBadLength leave the stream unsynchronised and must be
// treated as fatal. ErrStringTooLong is reported before anything is written.
package wire
