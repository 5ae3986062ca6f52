package session

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"time"

	"peerchat/internal/crypto"
	"peerchat/internal/domain"
	"peerchat/internal/protocol/handshake"
	"peerchat/internal/services/identity"
)

// serve accepts exactly one connection; the listener is single-use.
func (s *Session) serve(ln net.Listener) {
	conn, err := ln.Accept()
	_ = ln.Close()
	if err != nil {
		s.finish(s.closedOr(&TransportError{Op: "accept", Err: err}), false)
		return
	}
	s.log.Info("accepted", "remote", conn.RemoteAddr().String())
	s.run(conn)
}

// dial opens the initiator's connection and hands it to run.
func (s *Session) dial(target string) {
	s.host.Log(fmt.Sprintf("Connecting to %s", target))
	conn, err := s.opts.Dial(s.ctx, "tcp", target)
	if err != nil {
		err = s.closedOr(&TransportError{Op: "dial", Err: err})
		if err != nil {
			s.log.Warn("dial failed", "addr", target, "err", err)
			s.host.Log(fmt.Sprintf("Connection failed: %v", err))
		}
		s.finish(err, false)
		return
	}
	s.log.Info("dialed", "remote", conn.RemoteAddr().String())
	s.run(conn)
}

// run drives one connection from handshake to teardown.
func (s *Session) run(conn net.Conn) {
	if !s.attach(conn) {
		_ = conn.Close()
		s.finish(nil, false)
		return
	}
	from := domain.StateListening
	if s.Role() == domain.RoleInitiator {
		from = domain.StateConnecting
	}
	if !s.state.CompareAndSwap(int32(from), int32(domain.StateAuthenticating)) {
		s.finish(s.closedOr(ErrClosed), false)
		return
	}

	role := s.Role().String()
	began := time.Now()
	peer, key, err := s.authenticate(conn)
	if err != nil {
		outcome := "error"
		if errors.Is(err, handshake.ErrRejected) {
			outcome = "rejected"
		}
		s.m.Handshake(role, outcome, time.Since(began))
		err = s.closedOr(err)
		if err != nil {
			s.log.Warn("handshake failed", "err", err)
			s.host.Log(fmt.Sprintf("Handshake failed: %v", err))
		}
		s.finish(err, false)
		return
	}

	ciph, err := crypto.NewCipher(s.opts.Suite, key)
	if err != nil {
		key.Destroy()
		s.finish(s.closedOr(err), false)
		return
	}
	s.mu.Lock()
	s.peer = peer
	s.key = key
	s.ciph = ciph
	s.mu.Unlock()

	if !s.state.CompareAndSwap(int32(domain.StateAuthenticating), int32(domain.StateConnected)) {
		s.finish(s.closedOr(ErrClosed), false)
		return
	}
	s.m.Handshake(role, "ok", time.Since(began))

	log := s.log.With("role", role, "peer", peer)
	log.Info("connected", "suite", string(ciph.Suite()), "key_fingerprint", key.Fingerprint())
	s.host.Log(fmt.Sprintf("Key fingerprint %s (compare with your peer)", key.Fingerprint()))
	s.host.OnConnected(peer)

	err = s.closedOr(s.receiveLoop(log))
	if err != nil {
		log.Warn("disconnected", "err", err)
	} else {
		log.Info("closed")
	}
	s.finish(err, true)
}

// authenticate runs the handshake for the session's role under the
// handshake deadline and derives the session key from the token.
func (s *Session) authenticate(conn net.Conn) (string, *crypto.Key, error) {
	if d := s.opts.HandshakeTimeout; d > 0 {
		if err := conn.SetDeadline(time.Now().Add(d)); err != nil {
			return "", nil, &TransportError{Op: "handshake", Err: err}
		}
	}

	rw := bufio.NewReadWriter(s.r, s.w)
	var (
		res handshake.Result
		key *crypto.Key
	)
	err := s.token.Open(func(tok []byte) error {
		var err error
		if s.Role() == domain.RoleListener {
			res, err = handshake.Accept(rw, tok, s.opts.LocalName)
		} else {
			res, err = handshake.Dial(rw, tok, s.opts.LocalName)
		}
		if err != nil {
			return err
		}
		key, err = crypto.DeriveKey(tok)
		return err
	})
	if err != nil {
		if errors.Is(err, handshake.ErrRejected) || errors.Is(err, crypto.ErrCrypto) {
			return "", nil, err
		}
		return "", nil, &TransportError{Op: "handshake", Err: err}
	}
	// The name ends up on the user's terminal.
	if err := identity.ValidateDisplayName(res.PeerName); err != nil {
		key.Destroy()
		return "", nil, fmt.Errorf("peer name %q: %w", res.PeerName, err)
	}

	if err := conn.SetDeadline(time.Time{}); err != nil {
		key.Destroy()
		return "", nil, &TransportError{Op: "handshake", Err: err}
	}
	return res.PeerName, key, nil
}
