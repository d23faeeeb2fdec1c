// Package validate checks the size and shape of debug API input.
package validate

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Payload size limits (in bytes)
const (
	MaxJSONSize    = 1 * 1024 * 1024 // 1MB - request body limit
	MaxBackupSize  = 8 * 1024 * 1024 // 8MB - backup bundle limit, above the 5M-char store quota
	MaxMessageSize = 16 * 1024       // 16KB - stream message limit
)

// String length limits
const (
	MaxEmailLength    = 255
	MaxPasswordLength = 128
	MaxPrefixLength   = 128
)

var (
	// EmailPattern is a basic email validation
	EmailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	// KeyPrefixPattern allows the characters used in store keys
	KeyPrefixPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]*$`)
)

// SizeError reports a payload over its limit.
type SizeError struct {
	Size int
	Max  int
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("payload size %d bytes exceeds maximum %d bytes", e.Size, e.Max)
}

// Size checks that data fits in max bytes.
func Size(data []byte, max int) error {
	if len(data) > max {
		return &SizeError{Size: len(data), Max: max}
	}
	return nil
}

// String validates the rune length of a field.
func String(value, fieldName string, minLen, maxLen int, required bool) error {
	if value == "" {
		if required {
			return fmt.Errorf("%s is required", fieldName)
		}
		return nil
	}

	n := utf8.RuneCountInString(value)
	if n < minLen {
		return fmt.Errorf("%s must be at least %d characters", fieldName, minLen)
	}
	if n > maxLen {
		return fmt.Errorf("%s must be at most %d characters", fieldName, maxLen)
	}
	return nil
}

// Email validates an email address.
func Email(email string) error {
	if err := String(email, "email", 3, MaxEmailLength, true); err != nil {
		return err
	}
	if !EmailPattern.MatchString(strings.TrimSpace(email)) {
		return fmt.Errorf("invalid email format")
	}
	return nil
}

// Password validates a password length. Strength rules belong to the platform.
func Password(password string) error {
	return String(password, "password", 1, MaxPasswordLength, true)
}

// KeyPrefix validates a store key prefix filter. Empty matches every key.
func KeyPrefix(prefix string) error {
	if len(prefix) > MaxPrefixLength {
		return fmt.Errorf("prefix must be at most %d characters", MaxPrefixLength)
	}
	if !KeyPrefixPattern.MatchString(prefix) {
		return fmt.Errorf("prefix contains invalid characters (only alphanumeric, hyphens, and underscores allowed)")
	}
	return nil
}
