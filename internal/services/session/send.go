package session

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"peerchat/internal/crypto"
	"peerchat/internal/domain"
	"peerchat/internal/protocol/wire"
	"peerchat/internal/services/message"
)

// SendText sanitises text, sends it as one frame, and echoes the sent
// message to Host.OnText with fromPeer false.
func (s *Session) SendText(text string) error {
	c, err := s.cipher()
	if err != nil {
		return err
	}
	msg := s.msgs.Compose(text)
	payload, err := c.Seal([]byte(message.Format(msg)))
	if err != nil {
		return err
	}
	n := int64(len(payload))
	if n > s.opts.MaxTextSize {
		return fmt.Errorf("%w: text payload of %d bytes", ErrPayloadTooLarge, n)
	}

	err = s.writeFrame(context.Background(), wire.Header{Type: wire.FrameText, Length: n}, func(w io.Writer) error {
		_, err := w.Write(payload)
		return err
	})
	if err != nil {
		return err
	}
	s.m.Sent(wire.FrameText.String(), n)
	s.host.OnText(msg, false)
	return nil
}

// SendFile streams size bytes from src to the peer under the sanitised name.
// ctx bounds the wait for the writer slot; once the frame has started it is
// written to the end. A src that yields fewer than size bytes leaves the
// stream unusable and ends the session.
func (s *Session) SendFile(ctx context.Context, name string, src io.Reader, size int64) error {
	return s.sendFile(ctx, name, "", src, size)
}

// SendFileAsync sends the file at path on its own goroutine. The returned
// channel yields the result and is then closed.
func (s *Session) SendFileAsync(ctx context.Context, path string) <-chan error {
	out := make(chan error, 1)
	go func() {
		defer close(out)
		out <- s.sendPath(ctx, path)
	}()
	return out
}

func (s *Session) sendPath(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", path)
	}
	return s.sendFile(ctx, filepath.Base(path), path, f, info.Size())
}

func (s *Session) sendFile(ctx context.Context, name, path string, src io.Reader, size int64) error {
	c, err := s.cipher()
	if err != nil {
		return err
	}
	if size < 0 {
		return fmt.Errorf("%w: negative file size", wire.ErrBadLength)
	}
	name = message.SanitizeFileName(name)
	if len(name) > wire.MaxStringLen {
		return wire.ErrStringTooLong
	}
	n := c.SealedLen(size)
	if n > s.opts.MaxFileSize {
		return fmt.Errorf("%w: file %q encrypts to %d bytes, limit %d", ErrPayloadTooLarge, name, n, s.opts.MaxFileSize)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.host.OnFile(domain.FileEvent{
		TransferID: uuid.New(),
		Name:       name,
		Direction:  domain.DirectionSending,
		Path:       path,
		Size:       size,
	})
	err = s.writeFrame(ctx, wire.Header{Type: wire.FrameFile, Name: name, Length: n}, func(w io.Writer) error {
		return c.SealStream(w, src, size)
	})
	if err != nil {
		return err
	}
	s.m.Sent(wire.FrameFile.String(), n)
	return nil
}

func (s *Session) cipher() (crypto.Cipher, error) {
	switch s.State() {
	case domain.StateConnected:
		return s.ciph, nil
	case domain.StateClosed:
		return nil, ErrClosed
	default:
		return nil, ErrNotConnected
	}
}

// writeFrame writes one header and body while holding the writer slot. Any
// failure after the first byte leaves the peer mid-frame, so it aborts the
// session.
func (s *Session) writeFrame(ctx context.Context, h wire.Header, body func(io.Writer) error) error {
	select {
	case s.wsem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrClosed
	}
	defer s.releaseWriter()

	if s.State() != domain.StateConnected {
		return ErrClosed
	}
	err := wire.WriteHeader(s.w, h)
	if err == nil {
		err = body(s.w)
	}
	if err == nil {
		err = s.w.Flush()
	}
	if err != nil {
		terr := &TransportError{Op: "write " + h.Type.String(), Err: err}
		s.abort(terr)
		return terr
	}
	return nil
}

// releaseWriter frees the writer slot. After finish it also wipes the
// secrets, since finish could not take the slot itself.
func (s *Session) releaseWriter() {
	<-s.wsem
	if s.State() == domain.StateClosed {
		s.destroySecrets()
	}
}
