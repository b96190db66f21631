// Package account is a local implementation of core.AccountService.
//
// Accounts live in a YAML file with bcrypt password hashes. Signing in issues
// an HS256 JWT that is written next to the accounts file, so every CLI
// invocation on the same vault shares the signed-in session until sign-out
// or expiry. Identity-provider sign-in accepts HS256 ID tokens signed with the
// provider's configured secret.
package account

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/aretw0/notekit/pkg/core"
)

const (
	// PasswordProvider is the provider name of email/password accounts.
	PasswordProvider = "password"
	// MinPasswordLength is the shortest accepted password.
	MinPasswordLength = 6
	// DefaultTTL is the lifetime of an issued session.
	DefaultTTL = 30 * 24 * time.Hour

	issuer = "notekit"
)

// Config configures a Service.
type Config struct {
	// Path of the accounts file, e.g. <vault>/.notekit/accounts.yaml.
	Path string
	// SessionPath is where the signed-in session token is kept. Defaults to
	// session.jwt next to Path.
	SessionPath string
	// Secret signs session tokens.
	Secret []byte
	// Providers maps an identity provider name to the secret its ID tokens
	// are signed with.
	Providers  map[string][]byte
	TTL        time.Duration
	BcryptCost int
	Logger     *slog.Logger
	Now        func() time.Time
}

// Service implements core.AccountService.
type Service struct {
	cfg Config
	mu  sync.Mutex
}

type record struct {
	ID           string    `yaml:"id"`
	Email        string    `yaml:"email,omitempty"`
	DisplayName  string    `yaml:"display_name,omitempty"`
	Provider     string    `yaml:"provider"`
	PasswordHash string    `yaml:"password_hash,omitempty"`
	CreatedAt    time.Time `yaml:"created_at"`
}

type accountsFile struct {
	Accounts []record `yaml:"accounts"`
}

type sessionClaims struct {
	Email    string `json:"email,omitempty"`
	Name     string `json:"name,omitempty"`
	Provider string `json:"provider"`
	jwt.RegisteredClaims
}

type idTokenClaims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// New validates cfg and returns a Service.
func New(cfg Config) (*Service, error) {
	if cfg.Path == "" {
		return nil, errors.New("accounts file path is required")
	}
	if len(cfg.Secret) == 0 {
		return nil, errors.New("session secret is required")
	}
	if cfg.SessionPath == "" {
		cfg.SessionPath = filepath.Join(filepath.Dir(cfg.Path), "session.jwt")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{cfg: cfg}, nil
}

// SignUp creates a password account and signs it in.
func (s *Service) SignUp(ctx context.Context, email, password, displayName string) (core.Session, error) {
	email = normalizeEmail(email)
	if !strings.Contains(email, "@") {
		return core.Session{}, authErr("invalid email address")
	}
	if len(password) < MinPasswordLength {
		return core.Session{}, authErr(fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil {
		return core.Session{}, err
	}
	if _, ok := f.byEmail(email); ok {
		return core.Session{}, authErr("email already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return core.Session{}, fmt.Errorf("hash password: %w", err)
	}
	rec := record{
		ID:           ulid.Make().String(),
		Email:        email,
		DisplayName:  strings.TrimSpace(displayName),
		Provider:     PasswordProvider,
		PasswordHash: string(hash),
		CreatedAt:    s.cfg.Now().UTC(),
	}
	f.Accounts = append(f.Accounts, rec)
	if err := s.save(f); err != nil {
		return core.Session{}, err
	}

	s.cfg.Logger.Info("account created", "account", rec.ID, "email", email)
	return s.issue(rec)
}

// SignIn checks an email/password pair.
func (s *Service) SignIn(ctx context.Context, email, password string) (core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil {
		return core.Session{}, err
	}
	rec, ok := f.byEmail(normalizeEmail(email))
	if !ok || rec.PasswordHash == "" {
		return core.Session{}, authErr("invalid email or password")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte(password)); err != nil {
		s.cfg.Logger.Debug("password mismatch", "account", rec.ID)
		return core.Session{}, authErr("invalid email or password")
	}
	return s.issue(rec)
}

// SignInWithIdentityProvider verifies an ID token issued by provider and
// signs in the matching account, creating it on first use.
func (s *Service) SignInWithIdentityProvider(ctx context.Context, provider, idToken string) (core.Session, error) {
	secret, ok := s.cfg.Providers[provider]
	if !ok || len(secret) == 0 {
		return core.Session{}, authErr(fmt.Sprintf("identity provider %q is not configured", provider))
	}

	var claims idTokenClaims
	_, err := jwt.ParseWithClaims(idToken, &claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.cfg.Now))
	if err != nil {
		return core.Session{}, authErr(fmt.Sprintf("invalid %s token: %v", provider, err))
	}
	if claims.Subject == "" {
		return core.Session{}, authErr(fmt.Sprintf("%s token has no subject", provider))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil {
		return core.Session{}, err
	}
	id := provider + ":" + claims.Subject
	rec, found := f.byID(id)
	if !found {
		rec = record{
			ID:          id,
			Email:       normalizeEmail(claims.Email),
			DisplayName: claims.Name,
			Provider:    provider,
			CreatedAt:   s.cfg.Now().UTC(),
		}
		f.Accounts = append(f.Accounts, rec)
		if err := s.save(f); err != nil {
			return core.Session{}, err
		}
		s.cfg.Logger.Info("account linked", "account", id, "provider", provider)
	}
	return s.issue(rec)
}

// SignOut forgets the persisted session.
func (s *Service) SignOut(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.cfg.SessionPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove session: %w", err)
	}
	s.cfg.Logger.Debug("signed out")
	return nil
}

// Current returns the persisted session if its token is still valid.
func (s *Service) Current(ctx context.Context) (core.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.cfg.SessionPath)
	if err != nil {
		return core.Session{}, false
	}
	sess, err := s.verify(strings.TrimSpace(string(data)))
	if err != nil {
		s.cfg.Logger.Debug("stored session rejected", "error", err)
		return core.Session{}, false
	}
	return sess, true
}

// issue signs a session for rec and persists it.
func (s *Service) issue(rec record) (core.Session, error) {
	now := s.cfg.Now()
	claims := sessionClaims{
		Email:    rec.Email,
		Name:     rec.DisplayName,
		Provider: rec.Provider,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   rec.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.TTL)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.Secret)
	if err != nil {
		return core.Session{}, fmt.Errorf("sign session: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.cfg.SessionPath), 0755); err != nil {
		return core.Session{}, fmt.Errorf("persist session: %w", err)
	}
	if err := writeFileAtomic(s.cfg.SessionPath, []byte(token+"\n")); err != nil {
		return core.Session{}, fmt.Errorf("persist session: %w", err)
	}

	s.cfg.Logger.Info("signed in", "account", rec.ID, "provider", rec.Provider)
	return sessionFrom(claims, token), nil
}

func (s *Service) verify(token string) (core.Session, error) {
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.cfg.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.cfg.Now),
	)
	if err != nil {
		return core.Session{}, err
	}
	return sessionFrom(claims, token), nil
}

func sessionFrom(c sessionClaims, token string) core.Session {
	sess := core.Session{
		AccountID:   c.Subject,
		Email:       c.Email,
		DisplayName: c.Name,
		Provider:    c.Provider,
		Token:       token,
	}
	if c.IssuedAt != nil {
		sess.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		sess.ExpiresAt = c.ExpiresAt.Time
	}
	return sess
}

func (s *Service) load() (*accountsFile, error) {
	f := &accountsFile{}
	data, err := os.ReadFile(s.cfg.Path)
	if os.IsNotExist(err) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read accounts: %w", err)
	}
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("parse accounts %s: %w", s.cfg.Path, err)
	}
	return f, nil
}

func (s *Service) save(f *accountsFile) error {
	data, err := yaml.Marshal(f)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.cfg.Path), 0755); err != nil {
		return fmt.Errorf("write accounts: %w", err)
	}
	if err := writeFileAtomic(s.cfg.Path, data); err != nil {
		return fmt.Errorf("write accounts: %w", err)
	}
	return nil
}

// writeFileAtomic writes data to a temp file of its own next to filename and
// renames it into place. The temp file is created with mode 0600.
func writeFileAtomic(filename string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(filename), "."+filepath.Base(filename)+"-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name()) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), filename)
}

func (f *accountsFile) byEmail(email string) (record, bool) {
	for _, r := range f.Accounts {
		if r.Provider == PasswordProvider && r.Email == email {
			return r, true
		}
	}
	return record{}, false
}

func (f *accountsFile) byID(id string) (record, bool) {
	for _, r := range f.Accounts {
		if r.ID == id {
			return r, true
		}
	}
	return record{}, false
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func authErr(msg string) error {
	return fmt.Errorf("%w: %s", core.ErrUnauthenticated, msg)
}

var _ core.AccountService = (*Service)(nil)
