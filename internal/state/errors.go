package state

import "errors"

var (
	ErrWordExists     = errors.New("word index already exists")
	ErrWordNotFound   = errors.New("word index does not exist")
	ErrWordIndexRange = errors.New("word index out of range")
	ErrUserNotFound   = errors.New("user does not exist")
)
