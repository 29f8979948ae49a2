package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"chat-relay/errors"
)

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		name     string
		username string
		valid    bool
	}{
		{"simple", "alice", true},
		{"with underscore", "alice_b", true},
		{"with digits", "alice99", true},
		{"minimum length", "abc", true},
		{"maximum length", strings.Repeat("a", 20), true},
		{"empty", "", false},
		{"too short", "ab", false},
		{"too long", strings.Repeat("a", 21), false},
		{"leading digit", "1alice", false},
		{"spaces", "ali ce", false},
		{"punctuation", "alice!", false},
		{"hyphen", "alice-b", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUsername(tt.username)
			if tt.valid {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, errors.ErrInvalidUsername)
		})
	}
}
