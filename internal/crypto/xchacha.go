package crypto

import (
	"bytes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/awnumar/memguard"
	"golang.org/x/crypto/chacha20poly1305"
)

// XChaCha is the authenticated suite. Tampered payloads fail to open.
type XChaCha struct {
	aead cipher.AEAD
}

// NewXChaCha keys XChaCha20-Poly1305 with key.
func NewXChaCha(key *Key) (*XChaCha, error) {
	aead, err := chacha20poly1305.NewX(key.Bytes())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCrypto, err)
	}
	return &XChaCha{aead: aead}, nil
}

func (x *XChaCha) Suite() Suite { return SuiteXChaCha }

func (x *XChaCha) SealedLen(n int64) int64 {
	return int64(x.aead.NonceSize()) + n + int64(x.aead.Overhead())
}

func (x *XChaCha) Seal(plaintext []byte) ([]byte, error) {
	ns := x.aead.NonceSize()
	out := make([]byte, ns, ns+len(plaintext)+x.aead.Overhead())
	if _, err := rand.Read(out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryption, err)
	}
	return x.aead.Seal(out, out[:ns], plaintext, nil), nil
}

func (x *XChaCha) Open(payload []byte) ([]byte, error) {
	ns := x.aead.NonceSize()
	if len(payload) < ns+x.aead.Overhead() {
		return nil, ErrMalformedPayload
	}
	pt, err := x.aead.Open(nil, payload[:ns], payload[ns:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	return pt, nil
}

// SealStream buffers the plaintext; frames are size-capped by the session.
func (x *XChaCha) SealStream(dst io.Writer, src io.Reader, n int64) error {
	pt := make([]byte, n)
	defer memguard.WipeBytes(pt)
	if _, err := io.ReadFull(src, pt); err != nil {
		return err
	}
	out, err := x.Seal(pt)
	if err != nil {
		return err
	}
	_, err = dst.Write(out)
	return err
}

func (x *XChaCha) OpenStream(dst io.Writer, src io.Reader, n int64) error {
	if n < int64(x.aead.NonceSize()+x.aead.Overhead()) {
		return ErrMalformedPayload
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(src, payload); err != nil {
		return err
	}
	pt, err := x.Open(payload)
	if err != nil {
		return err
	}
	defer memguard.WipeBytes(pt)
	_, err = io.Copy(dst, bytes.NewReader(pt))
	return err
}
