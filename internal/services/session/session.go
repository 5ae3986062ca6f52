package session

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"peerchat/internal/crypto"
	"peerchat/internal/domain"
	"peerchat/internal/metrics"
	"peerchat/internal/services/identity"
	"peerchat/internal/services/message"
)

// Session is one peer-to-peer chat session. Create it with New, start it
// with Listen or Connect, and release it with Close.
type Session struct {
	id    uuid.UUID
	opts  Options
	host  domain.Host
	files domain.FileStore
	log   *slog.Logger
	m     *metrics.Collector
	msgs  *message.Service
	token *crypto.Token

	ctx    context.Context
	cancel context.CancelFunc

	state atomic.Int32

	mu      sync.Mutex
	started bool
	closed  bool // Close was called
	role    domain.Role
	stop    func() bool
	ln      net.Listener
	conn    net.Conn
	peer    string
	cause   error // first write failure, reported in place of the read error
	key     *crypto.Key

	// Set before the state becomes Connected and read-only afterwards.
	r    *bufio.Reader
	w    *bufio.Writer
	ciph crypto.Cipher

	// wsem serialises frame writes.
	wsem chan struct{}

	finishOnce  sync.Once
	secretsOnce sync.Once
	done        chan struct{}
	err         error
}

// New validates opts and seals the token. host receives all notifications;
// files stores incoming files and may be nil to refuse them. logger and m
// may be nil.
func New(opts Options, host domain.Host, files domain.FileStore, logger *slog.Logger, m *metrics.Collector) (*Session, error) {
	opts = opts.withDefaults()
	if err := identity.ValidateDisplayName(opts.LocalName); err != nil {
		return nil, err
	}
	if err := identity.ValidateToken(opts.Token); err != nil {
		return nil, err
	}
	suite, err := crypto.ParseSuite(string(opts.Suite))
	if err != nil {
		return nil, err
	}
	opts.Suite = suite

	tok, err := crypto.NewToken(opts.Token)
	if err != nil {
		return nil, err
	}
	opts.Token = ""

	if host == nil {
		host = nopHost{}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	id := uuid.New()
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:     id,
		opts:   opts,
		host:   host,
		files:  files,
		log:    logger.With("session", id.String()),
		m:      m,
		msgs:   message.New(opts.LocalName),
		token:  tok,
		ctx:    ctx,
		cancel: cancel,
		wsem:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}, nil
}

func (s *Session) ID() uuid.UUID { return s.id }

func (s *Session) State() domain.State { return domain.State(s.state.Load()) }

func (s *Session) LocalName() string { return s.opts.LocalName }

// Peer is the remote display name, empty until Connected.
func (s *Session) Peer() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peer
}

func (s *Session) Role() domain.Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role
}

// Listen binds addr and waits in the background for a single peer. It
// returns once the listener is bound. Cancelling ctx closes the session.
func (s *Session) Listen(ctx context.Context, addr string) (net.Addr, error) {
	if err := s.start(ctx, domain.RoleListener, domain.StateListening); err != nil {
		return nil, err
	}
	lc := net.ListenConfig{KeepAlive: s.opts.KeepAlive}
	ln, err := lc.Listen(s.ctx, "tcp", addr)
	if err != nil {
		terr := &TransportError{Op: "listen", Err: err}
		s.finish(s.closedOr(terr), false)
		return nil, terr
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = ln.Close()
		s.finish(nil, false)
		return nil, ErrClosed
	}
	s.ln = ln
	s.mu.Unlock()

	s.log.Info("listening", "addr", ln.Addr().String())
	s.host.Log(fmt.Sprintf("Waiting for a peer on %s", ln.Addr()))
	go s.serve(ln)
	return ln.Addr(), nil
}

// Connect dials addr (DefaultPort is added when addr has none) and runs the
// handshake, both in the background. It returns as soon as the session is
// Connecting; a dial failure ends the session and is reported by Wait.
// Cancelling ctx closes the session.
func (s *Session) Connect(ctx context.Context, addr string) error {
	if err := s.start(ctx, domain.RoleInitiator, domain.StateConnecting); err != nil {
		return err
	}
	go s.dial(JoinDefaultPort(addr, DefaultPort))
	return nil
}

// Close ends the session. It is idempotent and safe from any goroutine; a
// blocked accept or read returns immediately.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	started := s.started
	ln, conn := s.ln, s.conn
	s.mu.Unlock()

	s.state.Store(int32(domain.StateClosed))
	s.cancel()
	if ln != nil {
		_ = ln.Close()
	}
	if conn != nil {
		_ = conn.Close()
	}
	if !started {
		s.finish(nil, false)
	}
	return nil
}

// Done is closed once the session has fully shut down.
func (s *Session) Done() <-chan struct{} { return s.done }

// Wait blocks until the session ends and returns why: nil after a local
// Close, handshake.ErrRejected for a token mismatch, or the fatal error.
func (s *Session) Wait() error {
	<-s.done
	return s.err
}

func (s *Session) start(ctx context.Context, role domain.Role, st domain.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true
	s.role = role
	s.state.Store(int32(st))
	s.stop = context.AfterFunc(ctx, func() { _ = s.Close() })
	return nil
}

// attach records conn unless the session was closed meanwhile.
func (s *Session) attach(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conn = conn
	s.r = bufio.NewReader(conn)
	s.w = bufio.NewWriter(conn)
	return true
}

// abort records a write failure and tears down the connection; the receive
// loop then exits and finish reports err.
func (s *Session) abort(err error) {
	s.mu.Lock()
	if s.cause == nil {
		s.cause = err
	}
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

// closedOr picks the error to report for a session that is ending.
func (s *Session) closedOr(err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cause != nil {
		return s.cause
	}
	if s.closed {
		return nil
	}
	return err
}

func (s *Session) finish(err error, connected bool) {
	s.finishOnce.Do(func() {
		s.state.Store(int32(domain.StateClosed))

		s.mu.Lock()
		ln, conn, stop := s.ln, s.conn, s.stop
		s.mu.Unlock()

		if ln != nil {
			_ = ln.Close()
		}
		if conn != nil {
			_ = conn.Close()
		}
		s.cancel()
		if stop != nil {
			stop()
		}

		// A writer may still be blocked on its source. Whoever holds the
		// slot once the state is Closed wipes the secrets.
		select {
		case s.wsem <- struct{}{}:
			s.destroySecrets()
		default:
		}

		s.err = err
		if connected {
			s.host.OnDisconnected(err)
		}
		close(s.done)
	})
}

func (s *Session) destroySecrets() {
	s.secretsOnce.Do(func() {
		s.mu.Lock()
		key := s.key
		s.key = nil
		s.mu.Unlock()
		key.Destroy()
		s.token.Destroy()
	})
}

type nopHost struct{}

func (nopHost) OnConnected(string) {}
func (nopHost) OnDisconnected(error) {}
func (nopHost) OnText(domain.ChatMessage, bool) {}
func (nopHost) OnFile(domain.FileEvent) {}
func (nopHost) Log(string) {}

// Compile-time assertion that Session implements domain.Chat.
var _ domain.Chat = (*Session)(nil)
