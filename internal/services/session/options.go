package session

import (
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"peerchat/internal/crypto"
)

const (
	// DefaultPort is the well-known port used by both roles.
	DefaultPort = 12345

	DefaultMaxFileSize      int64 = 10 << 20
	DefaultMaxTextSize      int64 = 1 << 20
	DefaultHandshakeTimeout       = 30 * time.Second
	DefaultDialTimeout            = 15 * time.Second
	DefaultKeepAlive              = 30 * time.Second
)

var (
	ErrNotConnected    = errors.New("session is not connected")
	ErrAlreadyStarted  = errors.New("session already started")
	ErrClosed          = errors.New("session closed")
	ErrPayloadTooLarge = errors.New("payload too large")
)

// TransportError is a socket-level failure. It is always fatal to the
// session.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return "transport " + e.Op + ": " + e.Err.Error() }

func (e *TransportError) Unwrap() error { return e.Err }

// Options configures a Session. Zero values take the defaults above.
type Options struct {
	LocalName string
	Token     string
	Suite     crypto.Suite

	// MaxFileSize and MaxTextSize cap the encrypted payload length of a
	// frame in either direction.
	MaxFileSize int64
	MaxTextSize int64

	HandshakeTimeout time.Duration
	DialTimeout      time.Duration
	KeepAlive        time.Duration

	// Dial opens the connection for Connect. Nil uses a net.Dialer with
	// DialTimeout and KeepAlive.
	Dial func(ctx context.Context, network, addr string) (net.Conn, error)
}

func (o Options) withDefaults() Options {
	if o.Suite == "" {
		o.Suite = crypto.SuiteCBC
	}
	if o.MaxFileSize <= 0 {
		o.MaxFileSize = DefaultMaxFileSize
	}
	if o.MaxTextSize <= 0 {
		o.MaxTextSize = DefaultMaxTextSize
	}
	if o.HandshakeTimeout == 0 {
		o.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if o.DialTimeout == 0 {
		o.DialTimeout = DefaultDialTimeout
	}
	if o.KeepAlive == 0 {
		o.KeepAlive = DefaultKeepAlive
	}
	if o.Dial == nil {
		d := &net.Dialer{Timeout: o.DialTimeout, KeepAlive: o.KeepAlive}
		o.Dial = d.DialContext
	}
	return o
}

// JoinDefaultPort appends port to addr unless addr already has one.
func JoinDefaultPort(addr string, port int) string {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	host := strings.TrimSuffix(strings.TrimPrefix(addr, "["), "]")
	return net.JoinHostPort(host, strconv.Itoa(port))
}
