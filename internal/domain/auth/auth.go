package auth

import (
	"context"
	"time"
)

// User identifies the signed-in account.
type User struct {
	ID    string
	Email string
}

// Session is the result of a successful sign-in.
type Session struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresAt    time.Time
	User         User
}

// Authenticator is the external authentication backend.
//
// SignIn returns a *RejectedError when the backend refused the credentials.
// Any other error is treated as unexpected.
type Authenticator interface {
	SignIn(ctx context.Context, email, password string) (*Session, error)
}

// RejectedError is an authentication-rejected outcome. Message is meant for
// the user and is shown verbatim.
type RejectedError struct {
	Message string
}

func (e *RejectedError) Error() string {
	return "sign in rejected: " + e.Message
}
