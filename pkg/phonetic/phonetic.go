// Package phonetic converts between WORDS board indices, letters and the
// NATO phonetic alphabet.
package phonetic

import (
	"fmt"
	"strconv"
	"strings"
)

var alphabet = [26]string{
	"Alpha", "Bravo", "Charlie", "Delta", "Echo", "Foxtrot", "Golf",
	"Hotel", "India", "Juliett", "Kilo", "Lima", "Mike", "November",
	"Oscar", "Papa", "Quebec", "Romeo", "Sierra", "Tango", "Uniform",
	"Victor", "Whiskey", "X-ray", "Yankee", "Zulu",
}

// IntToLetter maps an index (0-25) or an ASCII code of an upper case
// (65-90) or lower case (97-122) letter to the upper case letter.
func IntToLetter(n int) (string, error) {
	switch {
	case n >= 0 && n <= 25:
		return string(rune('A' + n)), nil
	case n >= 'A' && n <= 'Z':
		return string(rune(n)), nil
	case n >= 'a' && n <= 'z':
		return string(rune(n - 32)), nil
	default:
		return "", fmt.Errorf("%w: %d", ErrInvalidNumber, n)
	}
}

// IntToPhonetic maps 0-25 to its phonetic word.
func IntToPhonetic(n int) (string, error) {
	if n < 0 || n > 25 {
		return "", fmt.Errorf("%w: %d", ErrInvalidNumber, n)
	}
	return alphabet[n], nil
}

// LetterToInt maps a single letter, either case, to 0-25.
func LetterToInt(letter string) (int, error) {
	upper := strings.ToUpper(letter)
	if len(upper) != 1 || upper[0] < 'A' || upper[0] > 'Z' {
		return 0, fmt.Errorf("%w: %q", ErrInvalidLetter, letter)
	}
	return int(upper[0] - 'A'), nil
}

// Label renders an index as "A (Alpha)".
func Label(n int) (string, error) {
	letter, err := IntToLetter(n)
	if err != nil {
		return "", err
	}
	word, err := IntToPhonetic(n)
	if err != nil {
		return "", err
	}
	return letter + " (" + word + ")", nil
}

// Parse accepts a letter, a phonetic word or a decimal index and returns the index.
func Parse(s string) (int, error) {
	s = strings.TrimSpace(s)
	if n, err := LetterToInt(s); err == nil {
		return n, nil
	}
	for i, word := range alphabet {
		if strings.EqualFold(word, s) {
			return i, nil
		}
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 && n <= 25 {
		return n, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidLetter, s)
}
