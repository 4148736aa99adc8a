package phonetic

import "errors"

var (
	ErrInvalidNumber = errors.New("invalid number")
	ErrInvalidLetter = errors.New("invalid letter")
)
