// Package auth guards the REST API with a single admin account and
// short-lived HS256 bearer tokens.
package auth

import (
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/dockhand-io/dockhand/internal/clock"
	"github.com/dockhand-io/dockhand/internal/config"
	"github.com/dockhand-io/dockhand/internal/core"
	"github.com/dockhand-io/dockhand/internal/logging"
)

// Service checks admin credentials and mints bearer tokens for the API.
type Service struct {
	user     string
	password string
	secret   []byte
	ttl      time.Duration
	clock    clock.Clock
	log      *logging.Logger
}

// New builds a Service from the configured admin account and signing key.
func New(cfg *config.Config, log *logging.Logger, clk clock.Clock) *Service {
	return &Service{
		user:     cfg.AuthUser,
		password: cfg.AuthPassword,
		secret:   []byte(cfg.SecretKey),
		ttl:      cfg.TokenTTL,
		clock:    clk,
		log:      log,
	}
}

// Token is the response to a successful login.
type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Login verifies the credentials and returns a signed token carrying the
// username as its subject.
func (s *Service) Login(username, password string) (Token, error) {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.user)) == 1
	passOK := checkPassword(s.password, password)
	if !userOK || !passOK {
		return Token{}, core.Errorf(core.KindSignatureMismatch, "invalid credentials")
	}

	now := s.clock.Now()
	expires := now.Add(s.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Token{}, err
	}

	s.log.Info("login", "user", username)
	return Token{AccessToken: signed, TokenType: "bearer", ExpiresAt: expires}, nil
}

// ValidateToken checks the signature and expiry of a bearer token and returns
// its subject.
func (s *Service) ValidateToken(token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.clock.Now))
	if err != nil {
		return "", core.Wrap(core.KindSignatureMismatch, err, "invalid token")
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", core.Errorf(core.KindSignatureMismatch, "token carries no subject")
	}
	return claims.Subject, nil
}

// checkPassword accepts a bcrypt hash when the stored value starts with $2,
// otherwise compares the plaintext in constant time.
func checkPassword(stored, given string) bool {
	if strings.HasPrefix(stored, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(given)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(given)) == 1
}

// ExtractBearer extracts a bearer token from an Authorization header.
// Returns empty string if not present or malformed.
func ExtractBearer(header string) string {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
