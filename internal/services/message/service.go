package message

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"peerchat/internal/domain"
)

// TimeLayout is the HH:mm:ss timestamp embedded in chat lines.
const TimeLayout = "15:04:05"

const (
	separator     = "|"
	strippedChars = `<>"'%;()&+`
)

// ErrMalformedLine is returned when a decrypted line is not sender|time|text.
var ErrMalformedLine = errors.New("malformed chat line")

// Service stamps outgoing messages with the local sender name.
type Service struct {
	sender string
	now    func() time.Time
}

// New returns a Service for sender using the wall clock.
func New(sender string) *Service {
	return &Service{sender: sender, now: time.Now}
}

// WithClock replaces the clock, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Compose sanitises text and stamps it with the sender and current time.
func (s *Service) Compose(text string) domain.ChatMessage {
	return domain.ChatMessage{
		Sender: s.sender,
		Time:   s.now().Truncate(time.Second),
		Text:   SanitizeText(text),
	}
}

// Format renders msg as a chat line.
func Format(msg domain.ChatMessage) string {
	return msg.Sender + separator + msg.Time.Format(TimeLayout) + separator + msg.Text
}

// Parse splits a chat line. The text part may itself contain '|'.
func Parse(line string) (domain.ChatMessage, error) {
	parts := strings.SplitN(line, separator, 3)
	if len(parts) != 3 {
		return domain.ChatMessage{}, fmt.Errorf("%w: %d fields", ErrMalformedLine, len(parts))
	}
	at, err := time.Parse(TimeLayout, parts[1])
	if err != nil {
		return domain.ChatMessage{}, fmt.Errorf("%w: timestamp %q", ErrMalformedLine, parts[1])
	}
	return domain.ChatMessage{Sender: parts[0], Time: at, Text: parts[2]}, nil
}

// SanitizeText strips markup and shell-ish punctuation from chat text.
func SanitizeText(s string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(strippedChars, r) {
			return -1
		}
		return r
	}, s)
}

// SanitizeFileName replaces every character outside [A-Za-z0-9._-] with '_'.
// It does not strip dots, so callers that touch the filesystem must still
// refuse "." and "..".
func SanitizeFileName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, name)
}
