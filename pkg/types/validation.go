package types

import (
	"strings"
	"unicode/utf8"
)

// Reserved protocol markers. They must never appear in user-supplied text.
const (
	MarkerStart = "†"
	MarkerEnd   = "‡"
)

const (
	MinCallsignLength = 3
	MinWordIndex      = 0
	MaxWordIndex      = 25
)

// ContainsMarker reports whether s holds either protocol marker.
func ContainsMarker(s string) bool {
	return strings.Contains(s, MarkerStart) || strings.Contains(s, MarkerEnd)
}

// ValidateText rejects text that carries a protocol marker.
func ValidateText(s string) error {
	if ContainsMarker(s) {
		return ErrForbiddenMarker
	}
	return nil
}

// ValidateCallsign checks length in characters and marker freedom.
func ValidateCallsign(callsign string) error {
	if utf8.RuneCountInString(callsign) < MinCallsignLength {
		return ErrCallsignTooShort
	}
	return ValidateText(callsign)
}

// IsValidWordIndex reports whether idx addresses one of the 26 board slots.
func IsValidWordIndex(idx int) bool {
	return idx >= MinWordIndex && idx <= MaxWordIndex
}

// Validate checks every user-supplied text in an outgoing client message.
func (m *Message) Validate() error {
	if m.Init != nil {
		if err := ValidateText(m.Init.Callsign); err != nil {
			return err
		}
		if err := ValidateText(m.Init.Password); err != nil {
			return err
		}
	}
	if m.Words != nil {
		for _, e := range append(append(TextEntries{}, m.Words.Add...), m.Words.Edit...) {
			if err := ValidateText(e.Text); err != nil {
				return err
			}
		}
	}
	if m.Users != nil {
		for _, e := range m.Users.Edit {
			if err := ValidateText(e.Note); err != nil {
				return err
			}
		}
	}
	if m.Chat != nil && m.Chat.Add != nil {
		for _, text := range m.Chat.Add.Texts {
			if err := ValidateText(text); err != nil {
				return err
			}
		}
	}
	return nil
}
