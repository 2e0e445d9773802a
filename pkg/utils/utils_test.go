package utils

import (
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTicketID(t *testing.T) {
	at := time.Date(2026, 3, 1, 23, 30, 0, 0, time.UTC)
	id, err := TicketID("", at)
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^FEL-20260301-[0-9A-F]{6}$`), id)

	id, err = TicketID("MERCH", at)
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^MERCH-20260301-[0-9A-F]{6}$`), id)
	assert.Equal(t, id, NormalizeTicketID("\t"+strings.ToLower(id)+" "))
}

func TestInviteCode(t *testing.T) {
	code, err := InviteCode()
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^TEAM-[0-9A-F]{8}$`), code)
	assert.Equal(t, code, NormalizeInviteCode(" "+strings.ToLower(code)+" "))
}

func TestGeneratePassword(t *testing.T) {
	p, err := GeneratePassword()
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{12}$`), p)
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("secret123")
	require.NoError(t, err)
	assert.True(t, CheckPassword("secret123", hash))
	assert.False(t, CheckPassword("secret124", hash))
	assert.False(t, CheckPassword("secret123", ""))

	_, err = HashPassword(strings.Repeat("x", 73))
	assert.ErrorIs(t, err, ErrPasswordTooLong)
}
