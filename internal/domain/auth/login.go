package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	// GenericErrorMessage replaces any unexpected failure of the backend.
	GenericErrorMessage = "Ein unerwarteter Fehler ist aufgetreten. Bitte versuchen Sie es später erneut."
	// MissingCredentialsMessage is shown when email or password is empty.
	MissingCredentialsMessage = "Bitte geben Sie E-Mail und Passwort ein."
	// DefaultRedirect is where a successful login navigates to.
	DefaultRedirect = "/"
)

// Outcome classifies a login attempt.
type Outcome string

const (
	OutcomeSuccess    Outcome = "success"
	OutcomeRejected   Outcome = "rejected"
	OutcomeUnexpected Outcome = "unexpected"
	OutcomeInvalid    Outcome = "invalid"
)

// Result is what the login form displays. Exactly one of Redirect and
// Error is set.
type Result struct {
	Outcome  Outcome
	Redirect string
	Error    string
	Session  *Session
}

// Login binds the login form to an Authenticator.
type Login struct {
	auth     Authenticator
	redirect string
}

// NewLogin returns a Login that redirects to DefaultRedirect on success.
func NewLogin(auth Authenticator) *Login {
	return &Login{auth: auth, redirect: DefaultRedirect}
}

// Submit signs in with the given credentials. It never returns an error:
// rejections carry the backend message, everything else is masked behind
// GenericErrorMessage.
func (l *Login) Submit(ctx context.Context, email, password string) Result {
	span := trace.SpanFromContext(ctx)

	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		span.AddEvent("login.invalid")
		return Result{Outcome: OutcomeInvalid, Error: MissingCredentialsMessage}
	}

	session, err := l.signIn(ctx, email, password)
	if err != nil {
		var rejected *RejectedError
		if errors.As(err, &rejected) {
			span.AddEvent("login.rejected")
			return Result{Outcome: OutcomeRejected, Error: rejected.Message}
		}
		zctx.From(ctx).Error("Sign in failed", zap.Error(err))
		span.AddEvent("login.unexpected")
		return Result{Outcome: OutcomeUnexpected, Error: GenericErrorMessage}
	}

	span.AddEvent("login.success", trace.WithAttributes(attribute.String("user.id", session.User.ID)))
	return Result{Outcome: OutcomeSuccess, Redirect: l.redirect, Session: session}
}

// signIn calls the backend, turning a panic or a nil session into an
// unexpected error.
func (l *Login) signIn(ctx context.Context, email, password string) (s *Session, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			s, err = nil, errors.Errorf("authenticator panic: %s", fmt.Sprint(rec))
		}
	}()

	s, err = l.auth.SignIn(ctx, email, password)
	if err == nil && s == nil {
		return nil, errors.New("authenticator returned no session")
	}
	return s, err
}
