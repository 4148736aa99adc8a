// Package auth decides whether an Init request promotes a pending connection.
package auth

import (
	"crypto/subtle"

	"tacboard/pkg/types"
)

// Outcome of an authentication attempt.
type Outcome int

const (
	Accepted Outcome = iota
	RejectedPassword
	RejectedCallsign
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case RejectedPassword:
		return "bad password"
	case RejectedCallsign:
		return "bad callsign"
	default:
		return "unknown"
	}
}

// Decision is the result of Authenticate. Reply is set for rejections and
// is sent only to the requesting connection.
type Decision struct {
	Outcome      Outcome
	Callsign     string
	RequestSetup bool
	Reply        *types.Message
}

func (d Decision) Accepted() bool {
	return d.Outcome == Accepted
}

// Authenticator checks the shared password and the callsign rules.
type Authenticator struct {
	password []byte
}

func NewAuthenticator(password string) *Authenticator {
	return &Authenticator{password: []byte(password)}
}

// Authenticate evaluates the checks in order and stops at the first failure.
// A rejected connection stays pending and may try again.
func (a *Authenticator) Authenticate(init *types.Init) (Decision, error) {
	if init == nil {
		return Decision{}, ErrMissingInit
	}

	if subtle.ConstantTimeCompare([]byte(init.Password), a.password) != 1 {
		return Decision{
			Outcome: RejectedPassword,
			Reply:   types.MetaMessage("password", false),
		}, nil
	}

	if err := types.ValidateCallsign(init.Callsign); err != nil {
		return Decision{
			Outcome:  RejectedCallsign,
			Callsign: init.Callsign,
			Reply:    types.MetaMessage("callsign", false),
		}, nil
	}

	return Decision{
		Outcome:      Accepted,
		Callsign:     init.Callsign,
		RequestSetup: init.RequestSetup,
	}, nil
}
