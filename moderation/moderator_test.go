package moderation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestModerator_Censor(t *testing.T) {
	moderator, err := NewModerator([]string{"tabarnak", "heck"}, '*')
	require.NoError(t, err)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"clean text untouched", "hello world", "hello world"},
		{"single match", "oh tabarnak eh", "oh ******** eh"},
		{"case insensitive", "oh TaBarNak eh", "oh ******** eh"},
		{"multiple matches", "heck this heck", "**** this ****"},
		{"match inside a word", "heckler", "****ler"},
		{"empty input", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, moderator.Censor(tt.in))
		})
	}
}

func TestModerator_PreservesLength(t *testing.T) {
	moderator, err := NewModerator([]string{"flooble"}, '#')
	require.NoError(t, err)

	in := "a flooble walks into a bar"
	out := moderator.Censor(in)
	require.Len(t, []rune(out), len([]rune(in)))
	require.Equal(t, "a ####### walks into a bar", out)
}
