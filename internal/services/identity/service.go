package identity

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"

	"peerchat/internal/crypto"
	"peerchat/internal/protocol/wire"
)

const (
	// maxDisplayNameLength caps display names in runes.
	maxDisplayNameLength = 64

	fallbackDisplayName = "peer"
)

var (
	// ErrInvalidDisplayName is returned when a name fails the display policy.
	ErrInvalidDisplayName = fmt.Errorf(
		"display name must be 1-%d characters without '|' or control characters",
		maxDisplayNameLength,
	)
	// ErrInvalidToken is returned for empty or oversized tokens.
	ErrInvalidToken = errors.New("token must be non-empty and fit a handshake string")
)

// ValidateDisplayName enforces the display name policy.
func ValidateDisplayName(name string) error {
	if !isDisplayable(name) {
		return ErrInvalidDisplayName
	}
	return nil
}

// DefaultDisplayName derives a name from the environment, falling back to
// "peer" when nothing usable is found.
func DefaultDisplayName() string {
	for _, candidate := range []string{os.Getenv("USER"), os.Getenv("USERNAME")} {
		if isDisplayable(candidate) {
			return candidate
		}
	}
	if host, err := os.Hostname(); err == nil && isDisplayable(host) {
		return host
	}
	return fallbackDisplayName
}

// IssueToken returns a fresh 256-bit hex token for a listening session.
func IssueToken() (string, error) {
	tok, err := crypto.GenerateToken()
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	return tok, nil
}

// ValidateToken rejects tokens that cannot be sent in the handshake. Any
// other string is acceptable: tokens are compared, not parsed.
func ValidateToken(token string) error {
	if token == "" || len(token) > wire.MaxStringLen {
		return ErrInvalidToken
	}
	return nil
}

// NormalizeToken trims surrounding whitespace, typically left over from a
// paste.
func NormalizeToken(token string) string {
	return strings.TrimSpace(token)
}

// isDisplayable enforces the display policy.
func isDisplayable(name string) bool {
	if name == "" || !utf8.ValidString(name) {
		return false
	}
	if utf8.RuneCountInString(name) > maxDisplayNameLength {
		return false
	}
	for _, r := range name {
		switch {
		case r == '|':
			return false
		case unicode.IsControl(r):
			return false
		}
	}
	return strings.TrimSpace(name) != ""
}
