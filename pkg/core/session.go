package core

import (
	"context"
	"time"
)

// Session is the explicit, signed-in account context passed into every
// lifecycle operation and query. It is acquired at sign-in and released at
// sign-out; nothing in the core reads a global "current user".
type Session struct {
	AccountID   string    `json:"accountId" yaml:"account_id"`
	Email       string    `json:"email,omitempty" yaml:"email,omitempty"`
	DisplayName string    `json:"displayName,omitempty" yaml:"display_name,omitempty"`
	Provider    string    `json:"provider" yaml:"provider"`
	Token       string    `json:"-" yaml:"-"`
	IssuedAt    time.Time `json:"issuedAt" yaml:"issued_at"`
	ExpiresAt   time.Time `json:"expiresAt,omitempty" yaml:"expires_at,omitempty"`
}

// Valid reports whether the session identifies an account and has not expired.
func (s Session) Valid() bool {
	if s.AccountID == "" {
		return false
	}
	return s.ExpiresAt.IsZero() || time.Now().Before(s.ExpiresAt)
}

func (s Session) require() error {
	if !s.Valid() {
		return ErrUnauthenticated
	}
	return nil
}

// AccountService is the identity collaborator. The core only consumes the
// Session it hands out.
type AccountService interface {
	SignUp(ctx context.Context, email, password, displayName string) (Session, error)
	SignIn(ctx context.Context, email, password string) (Session, error)
	SignInWithIdentityProvider(ctx context.Context, provider, idToken string) (Session, error)
	SignOut(ctx context.Context) error
	// Current returns the signed-in session, if any.
	Current(ctx context.Context) (Session, bool)
}
