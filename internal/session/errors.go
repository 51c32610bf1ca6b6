package session

import "errors"

var (
	// ErrLoginRejected is returned by Login when the server does not accept
	// the token.
	ErrLoginRejected = errors.New("session: login rejected")

	// ErrLogoutFailed is returned when the server could not invalidate the
	// token. The local session is cleared regardless.
	ErrLogoutFailed = errors.New("session: server logout failed")
)
