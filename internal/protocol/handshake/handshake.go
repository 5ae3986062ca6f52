package handshake

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"io"

	"peerchat/internal/protocol/wire"
)

const (
	// Ack is sent by the listener when the token matches.
	Ack = "Connected"
	// Reject is sent by the listener before it drops a peer with a bad token.
	Reject = "Invalid token. Connection refused."
)

// ErrRejected means the token did not match on one side or the other.
var ErrRejected = errors.New("handshake rejected")

// Conn is a buffered duplex stream. *bufio.ReadWriter satisfies it.
type Conn interface {
	io.Reader
	io.Writer
	Flush() error
}

// Result is what a successful handshake learns about the peer.
type Result struct {
	PeerName string
}

// Accept runs the listener side against token.
func Accept(c Conn, token []byte, localName string) (Result, error) {
	got, err := wire.ReadString(c)
	if err != nil {
		return Result{}, fmt.Errorf("read token: %w", err)
	}
	if subtle.ConstantTimeCompare([]byte(got), token) != 1 {
		if err := send(c, Reject); err != nil {
			return Result{}, fmt.Errorf("%w: send reject: %v", ErrRejected, err)
		}
		return Result{}, fmt.Errorf("%w: token mismatch", ErrRejected)
	}
	if err := send(c, Ack); err != nil {
		return Result{}, fmt.Errorf("send ack: %w", err)
	}

	peer, err := wire.ReadString(c)
	if err != nil {
		return Result{}, fmt.Errorf("read peer name: %w", err)
	}
	if err := send(c, localName); err != nil {
		return Result{}, fmt.Errorf("send name: %w", err)
	}
	return Result{PeerName: peer}, nil
}

// Dial runs the initiator side with token.
func Dial(c Conn, token []byte, localName string) (Result, error) {
	if err := send(c, string(token)); err != nil {
		return Result{}, fmt.Errorf("send token: %w", err)
	}
	resp, err := wire.ReadString(c)
	if err != nil {
		return Result{}, fmt.Errorf("read response: %w", err)
	}
	if resp != Ack {
		return Result{}, fmt.Errorf("%w: %q", ErrRejected, resp)
	}

	if err := send(c, localName); err != nil {
		return Result{}, fmt.Errorf("send name: %w", err)
	}
	peer, err := wire.ReadString(c)
	if err != nil {
		return Result{}, fmt.Errorf("read peer name: %w", err)
	}
	return Result{PeerName: peer}, nil
}

func send(c Conn, s string) error {
	if err := wire.WriteString(c, s); err != nil {
		return err
	}
	return c.Flush()
}
