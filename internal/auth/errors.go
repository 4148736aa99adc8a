package auth

import "errors"

var ErrMissingInit = errors.New("message has no Init section")
