package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"io"

	"github.com/awnumar/memguard"
)

// IVSize is the length of the random IV prefixed to every CBC payload.
const IVSize = aes.BlockSize

// streamChunk must stay a multiple of aes.BlockSize.
const streamChunk = 32 * 1024

// CBC is the AES-256-CBC suite. It carries no MAC.
type CBC struct {
	block cipher.Block
}

// NewCBC keys AES-256 with key.
func NewCBC(key *Key) (*CBC, error) {
	block, err := aes.NewCipher(key.Bytes())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCrypto, err)
	}
	return &CBC{block: block}, nil
}

// Encrypt seals plaintext under key with a fresh IV.
func Encrypt(plaintext []byte, key *Key) ([]byte, error) {
	c, err := NewCBC(key)
	if err != nil {
		return nil, err
	}
	return c.Seal(plaintext)
}

// Decrypt opens an IV-prefixed CBC payload under key.
func Decrypt(payload []byte, key *Key) ([]byte, error) {
	c, err := NewCBC(key)
	if err != nil {
		return nil, err
	}
	return c.Open(payload)
}

func (c *CBC) Suite() Suite { return SuiteCBC }

func (c *CBC) SealedLen(n int64) int64 {
	return IVSize + (n/aes.BlockSize+1)*aes.BlockSize
}

func (c *CBC) Seal(plaintext []byte) ([]byte, error) {
	padded := pad(plaintext)
	defer memguard.WipeBytes(padded)

	out := make([]byte, IVSize+len(padded))
	iv := out[:IVSize]
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryption, err)
	}
	cipher.NewCBCEncrypter(c.block, iv).CryptBlocks(out[IVSize:], padded)
	return out, nil
}

func (c *CBC) Open(payload []byte) ([]byte, error) {
	if len(payload) < IVSize {
		return nil, ErrMalformedPayload
	}
	iv, body := payload[:IVSize], payload[IVSize:]
	if len(body) == 0 || len(body)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext is not a whole number of blocks", ErrDecryption)
	}
	out := make([]byte, len(body))
	cipher.NewCBCDecrypter(c.block, iv).CryptBlocks(out, body)
	pt, err := unpad(out)
	if err != nil {
		memguard.WipeBytes(out)
		return nil, err
	}
	return pt, nil
}

func (c *CBC) SealStream(dst io.Writer, src io.Reader, n int64) error {
	iv := make([]byte, IVSize)
	if _, err := rand.Read(iv); err != nil {
		return fmt.Errorf("%w: %v", ErrEncryption, err)
	}
	if _, err := dst.Write(iv); err != nil {
		return err
	}
	mode := cipher.NewCBCEncrypter(c.block, iv)

	buf := make([]byte, streamChunk)
	defer memguard.WipeBytes(buf)

	remaining := n
	for remaining >= aes.BlockSize {
		k := min(int64(len(buf)), remaining-remaining%aes.BlockSize)
		chunk := buf[:k]
		if _, err := io.ReadFull(src, chunk); err != nil {
			return err
		}
		mode.CryptBlocks(chunk, chunk)
		if _, err := dst.Write(chunk); err != nil {
			return err
		}
		remaining -= k
	}

	tail := buf[:remaining]
	if _, err := io.ReadFull(src, tail); err != nil {
		return err
	}
	final := pad(tail)
	mode.CryptBlocks(final, final)
	_, err := dst.Write(final)
	return err
}

func (c *CBC) OpenStream(dst io.Writer, src io.Reader, n int64) error {
	if n < IVSize {
		return ErrMalformedPayload
	}
	body := n - IVSize
	if body == 0 || body%aes.BlockSize != 0 {
		return fmt.Errorf("%w: ciphertext is not a whole number of blocks", ErrDecryption)
	}
	iv := make([]byte, IVSize)
	if _, err := io.ReadFull(src, iv); err != nil {
		return err
	}
	mode := cipher.NewCBCDecrypter(c.block, iv)

	buf := make([]byte, streamChunk)
	defer memguard.WipeBytes(buf)

	// The final block carries the padding, so it is held back until the
	// whole ciphertext has been read.
	held := make([]byte, aes.BlockSize)
	defer memguard.WipeBytes(held)
	holding := false

	for remaining := body; remaining > 0; {
		k := min(int64(len(buf)), remaining)
		chunk := buf[:k]
		if _, err := io.ReadFull(src, chunk); err != nil {
			return err
		}
		mode.CryptBlocks(chunk, chunk)
		remaining -= k

		if holding {
			if _, err := dst.Write(held); err != nil {
				return err
			}
		}
		if _, err := dst.Write(chunk[:k-aes.BlockSize]); err != nil {
			return err
		}
		copy(held, chunk[k-aes.BlockSize:])
		holding = true
	}

	last, err := unpad(held)
	if err != nil {
		return err
	}
	_, err = dst.Write(last)
	return err
}

// pad applies PKCS#7 padding into a new slice.
func pad(b []byte) []byte {
	n := aes.BlockSize - len(b)%aes.BlockSize
	out := make([]byte, len(b)+n)
	copy(out, b)
	for i := len(b); i < len(out); i++ {
		out[i] = byte(n)
	}
	return out
}

// unpad strips PKCS#7 padding from a block-aligned buffer.
func unpad(b []byte) ([]byte, error) {
	if len(b) == 0 || len(b)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: bad padding", ErrDecryption)
	}
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize {
		return nil, fmt.Errorf("%w: bad padding", ErrDecryption)
	}
	good := 1
	for _, v := range b[len(b)-n:] {
		good &= subtle.ConstantTimeByteEq(v, byte(n))
	}
	if good != 1 {
		return nil, fmt.Errorf("%w: bad padding", ErrDecryption)
	}
	return b[:len(b)-n], nil
}
