package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// FrameType tags each frame on the wire.
type FrameType int32

const (
	FrameText FrameType = 1
	FrameFile FrameType = 2
)

func (t FrameType) String() string {
	switch t {
	case FrameText:
		return "text"
	case FrameFile:
		return "file"
	default:
		return fmt.Sprintf("frame(%d)", int32(t))
	}
}

// MaxStringLen is the largest string WriteString accepts.
const MaxStringLen = math.MaxUint16

var (
	ErrStringTooLong = errors.New("string exceeds 65535 bytes")
	ErrUnknownFrame  = errors.New("unknown frame type")
	ErrBadLength     = errors.New("invalid frame length")
)

// Header is everything in a frame before its payload.
type Header struct {
	Type   FrameType
	Name   string // file frames only
	Length int64
}

// WriteString writes s with a uint16 length prefix.
func WriteString(w io.Writer, s string) error {
	if len(s) > MaxStringLen {
		return ErrStringTooLong
	}
	buf := make([]byte, 2+len(s))
	binary.BigEndian.PutUint16(buf, uint16(len(s)))
	copy(buf[2:], s)
	_, err := w.Write(buf)
	return err
}

// ReadString reads a uint16 length-prefixed string.
func ReadString(r io.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", unexpected(err)
	}
	return string(buf), nil
}

// WriteHeader writes h. The caller follows it with exactly h.Length payload
// bytes.
func WriteHeader(w io.Writer, h Header) error {
	if h.Length < 0 {
		return ErrBadLength
	}
	switch h.Type {
	case FrameText:
		if h.Length > math.MaxInt32 {
			return fmt.Errorf("%w: text payload of %d bytes", ErrBadLength, h.Length)
		}
		var buf [8]byte
		binary.BigEndian.PutUint32(buf[0:], uint32(FrameText))
		binary.BigEndian.PutUint32(buf[4:], uint32(h.Length))
		_, err := w.Write(buf[:])
		return err
	case FrameFile:
		if len(h.Name) > MaxStringLen {
			return ErrStringTooLong
		}
		buf := make([]byte, 0, 4+2+len(h.Name)+8)
		buf = binary.BigEndian.AppendUint32(buf, uint32(FrameFile))
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(h.Name)))
		buf = append(buf, h.Name...)
		buf = binary.BigEndian.AppendUint64(buf, uint64(h.Length))
		_, err := w.Write(buf)
		return err
	default:
		return fmt.Errorf("%w: %d", ErrUnknownFrame, int32(h.Type))
	}
}

// ReadHeader reads the next frame header. A clean EOF before the type is
// returned as io.EOF; EOF anywhere later is io.ErrUnexpectedEOF.
func ReadHeader(r io.Reader) (Header, error) {
	var typ int32
	if err := binary.Read(r, binary.BigEndian, &typ); err != nil {
		return Header{}, err
	}
	h := Header{Type: FrameType(typ)}

	switch h.Type {
	case FrameText:
		var n int32
		if err := binary.Read(r, binary.BigEndian, &n); err != nil {
			return Header{}, unexpected(err)
		}
		h.Length = int64(n)
	case FrameFile:
		name, err := ReadString(r)
		if err != nil {
			return Header{}, unexpected(err)
		}
		h.Name = name
		if err := binary.Read(r, binary.BigEndian, &h.Length); err != nil {
			return Header{}, unexpected(err)
		}
	default:
		return Header{}, fmt.Errorf("%w: %d", ErrUnknownFrame, typ)
	}

	if h.Length < 0 {
		return Header{}, fmt.Errorf("%w: %d", ErrBadLength, h.Length)
	}
	return h, nil
}

func unexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
