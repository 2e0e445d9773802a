package utils

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"
)

// DefaultTicketPrefix is used when no ticket prefix is configured.
const DefaultTicketPrefix = "FEL"

// RandomHex returns n random bytes as upper-case hex.
func RandomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(b)), nil
}

// TicketID returns a ticket identifier of the form {prefix}-{yyyymmdd}-{6 hex}.
func TicketID(prefix string, at time.Time) (string, error) {
	if prefix == "" {
		prefix = DefaultTicketPrefix
	}
	suffix, err := RandomHex(3)
	if err != nil {
		return "", err
	}
	return prefix + "-" + at.UTC().Format("20060102") + "-" + suffix, nil
}

// NormalizeTicketID upper-cases and trims a submitted ticket id.
func NormalizeTicketID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

// InviteCode returns a team invite code of the form TEAM-{8 hex}.
func InviteCode() (string, error) {
	suffix, err := RandomHex(4)
	if err != nil {
		return "", err
	}
	return "TEAM-" + suffix, nil
}

// NormalizeInviteCode upper-cases and trims a submitted invite code.
func NormalizeInviteCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// GeneratePassword returns a random 12 character hex password.
func GeneratePassword() (string, error) {
	s, err := RandomHex(6)
	if err != nil {
		return "", err
	}
	return strings.ToLower(s), nil
}
