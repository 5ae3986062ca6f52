package session

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"peerchat/internal/crypto"
	"peerchat/internal/domain"
	"peerchat/internal/metrics"
	"peerchat/internal/protocol/wire"
	"peerchat/internal/services/identity"
	"peerchat/internal/services/message"
)

var errNoFileStore = errors.New("file transfer disabled")

// receiveLoop reads frames until the stream fails. Only fatal errors are
// returned; per-frame failures are reported and skipped.
func (s *Session) receiveLoop(log *slog.Logger) error {
	for {
		h, err := wire.ReadHeader(s.r)
		if err != nil {
			if errors.Is(err, wire.ErrUnknownFrame) || errors.Is(err, wire.ErrBadLength) {
				return err
			}
			return &TransportError{Op: "read", Err: err}
		}

		body := &frameBody{r: s.r, n: h.Length}
		ferr := s.dispatch(h, body)
		if err := body.drain(); err != nil {
			return &TransportError{Op: "read", Err: err}
		}
		if ferr != nil {
			s.reject(log, h, ferr)
		}
	}
}

func (s *Session) dispatch(h wire.Header, body io.Reader) error {
	switch h.Type {
	case wire.FrameText:
		return s.receiveText(h, body)
	case wire.FrameFile:
		return s.receiveFile(h, body)
	default:
		return fmt.Errorf("%w: %d", wire.ErrUnknownFrame, int32(h.Type))
	}
}

func (s *Session) receiveText(h wire.Header, body io.Reader) error {
	if h.Length > s.opts.MaxTextSize {
		return fmt.Errorf("%w: text frame of %d bytes", ErrPayloadTooLarge, h.Length)
	}
	payload := make([]byte, h.Length)
	if _, err := io.ReadFull(body, payload); err != nil {
		return err
	}
	pt, err := s.ciph.Open(payload)
	if err != nil {
		return err
	}
	msg, err := message.Parse(string(pt))
	if err != nil {
		return err
	}
	if err := identity.ValidateDisplayName(msg.Sender); err != nil {
		return fmt.Errorf("%w: sender %q: %v", message.ErrMalformedLine, msg.Sender, err)
	}
	s.m.Received(h.Type.String(), h.Length)
	s.host.OnText(msg, true)
	return nil
}

func (s *Session) receiveFile(h wire.Header, body io.Reader) error {
	name := message.SanitizeFileName(h.Name)
	if h.Length > s.opts.MaxFileSize {
		return fmt.Errorf("%w: file %q of %d bytes exceeds %d", ErrPayloadTooLarge, name, h.Length, s.opts.MaxFileSize)
	}
	if s.files == nil {
		return errNoFileStore
	}

	pf, err := s.files.Create(name)
	if err != nil {
		return fmt.Errorf("store %q: %w", name, err)
	}
	cw := &countingWriter{w: pf}
	if err := s.ciph.OpenStream(cw, body, h.Length); err != nil {
		_ = pf.Abort()
		return err
	}
	path, err := pf.Commit()
	if err != nil {
		_ = pf.Abort()
		return fmt.Errorf("store %q: %w", name, err)
	}

	s.m.Received(h.Type.String(), h.Length)
	s.host.OnFile(domain.FileEvent{
		TransferID: uuid.New(),
		Name:       name,
		Direction:  domain.DirectionReceived,
		Path:       path,
		Size:       cw.n,
		FromPeer:   true,
	})
	return nil
}

func (s *Session) reject(log *slog.Logger, h wire.Header, err error) {
	reason := rejectReason(err)
	s.m.Rejected(h.Type.String(), reason, h.Length)
	log.Warn("frame rejected", "type", h.Type.String(), "length", h.Length, "reason", reason, "err", err)
	s.host.Log(fmt.Sprintf("Dropped %s frame: %v", h.Type, err))
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrPayloadTooLarge):
		return metrics.ReasonTooLarge
	case errors.Is(err, crypto.ErrMalformedPayload), errors.Is(err, message.ErrMalformedLine):
		return metrics.ReasonMalformed
	case errors.Is(err, crypto.ErrCrypto):
		return metrics.ReasonDecrypt
	default:
		return metrics.ReasonStore
	}
}

// frameBody limits reads to one frame's payload and remembers the first
// error from the underlying stream, which is always fatal.
type frameBody struct {
	r   io.Reader
	n   int64
	err error
}

func (b *frameBody) Read(p []byte) (int, error) {
	if b.err != nil {
		return 0, b.err
	}
	if b.n <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > b.n {
		p = p[:b.n]
	}
	n, err := b.r.Read(p)
	b.n -= int64(n)
	if err == io.EOF {
		if b.n == 0 {
			err = nil
		} else {
			err = io.ErrUnexpectedEOF
		}
	}
	if err != nil {
		b.err = err
	}
	return n, err
}

// drain discards whatever the handler left unread.
func (b *frameBody) drain() error {
	if b.err != nil {
		return b.err
	}
	if _, err := io.Copy(io.Discard, b); err != nil {
		return err
	}
	return b.err
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
