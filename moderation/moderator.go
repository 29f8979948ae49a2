// Package moderation censors configured words in group content before it
// is persisted and broadcast. It is an optional collaborator: a nil
// Moderator means content passes through untouched.
package moderation

import (
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
)

type Moderator struct {
	machine     *goahocorasick.Machine
	replacement rune
}

// NewModerator builds an Aho-Corasick automaton over the lowercased word
// list. Matching is case-insensitive; censoring preserves message length.
func NewModerator(words []string, replacement rune) (*Moderator, error) {
	patterns := make([][]rune, len(words))
	for i, word := range words {
		patterns[i] = lowerRunes([]rune(word))
	}

	machine := new(goahocorasick.Machine)
	if err := machine.Build(patterns); err != nil {
		return nil, err
	}
	return &Moderator{machine: machine, replacement: replacement}, nil
}

// Censor replaces every occurrence of a configured word with the
// replacement rune, one per original character.
func (m *Moderator) Censor(text string) string {
	original := []rune(text)
	if len(original) == 0 {
		return text
	}

	matches := m.machine.MultiPatternSearch(lowerRunes(original), false)
	if len(matches) == 0 {
		return text
	}

	for _, match := range matches {
		end := match.Pos + len(match.Word)
		if match.Pos < 0 || end > len(original) {
			continue
		}
		for i := match.Pos; i < end; i++ {
			original[i] = m.replacement
		}
	}
	return string(original)
}

func lowerRunes(in []rune) []rune {
	out := make([]rune, len(in))
	for i, r := range in {
		out[i] = unicode.ToLower(r)
	}
	return out
}
