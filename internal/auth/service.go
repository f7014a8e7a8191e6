// Package auth signs in the store admin and guards the admin API with short-lived JWTs.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/noah-isme/liff-store/internal/common"
)

const (
	defaultAccessTTL = 12 * time.Hour
	// RoleAdmin is the role claim carried by admin tokens.
	RoleAdmin = "admin"
	roleClaim = "role"
)

// Service checks admin credentials and issues access tokens.
type Service struct {
	username     string
	passwordHash string
	secret       []byte
	accessTTL    time.Duration
	now          func() time.Time
	signer       jwa.SignatureAlgorithm
	validator    TokenValidator
	issuer       string
	audience     string
	clockSkew    time.Duration
}

// Config configures the auth service.
type Config struct {
	Username       string
	PasswordHash   string
	Secret         string
	AccessTokenTTL time.Duration
	Issuer         string
	Audience       string
	ClockSkew      time.Duration
}

// LoginResult carries the token returned after a successful login.
type LoginResult struct {
	Username     string    `json:"username"`
	AccessToken  string    `json:"accessToken"`
	AccessExpiry time.Time `json:"accessExpiresAt"`
}

// NewService constructs a Service instance with sane defaults.
func NewService(cfg Config) (*Service, error) {
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errors.New("auth: secret is required")
	}
	username := strings.TrimSpace(cfg.Username)
	if username == "" {
		return nil, errors.New("auth: admin username is required")
	}
	hash := strings.TrimSpace(cfg.PasswordHash)
	if hash == "" {
		return nil, errors.New("auth: admin password hash is required")
	}
	if _, _, _, err := argon2id.DecodeHash(hash); err != nil {
		return nil, fmt.Errorf("auth: admin password hash: %w", err)
	}
	accessTTL := cfg.AccessTokenTTL
	if accessTTL <= 0 {
		accessTTL = defaultAccessTTL
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		issuer = "liff-store"
	}
	audience := strings.TrimSpace(cfg.Audience)
	if audience == "" {
		audience = "liff-store-admin"
	}
	clockSkew := cfg.ClockSkew
	if clockSkew < 0 {
		clockSkew = 0
	}

	return &Service{
		username:     username,
		passwordHash: hash,
		secret:       []byte(secret),
		accessTTL:    accessTTL,
		now:          time.Now,
		signer:       jwa.HS256,
		validator: TokenValidator{
			Issuer:    issuer,
			Audience:  audience,
			ClockSkew: clockSkew,
			Algorithm: jwa.HS256,
			Role:      RoleAdmin,
		},
		issuer:    issuer,
		audience:  audience,
		clockSkew: clockSkew,
	}, nil
}

// WithNow allows tests to override the time provider.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// HashPassword returns the argon2id encoding of password for ADMIN_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	if len(password) < 8 {
		return "", errors.New("auth: password must be at least 8 characters")
	}
	return argon2id.CreateHash(password, argon2id.DefaultParams)
}

func invalidCredentials() *common.AppError {
	return common.NewAppError("INVALID_CREDENTIALS", "invalid username or password", http.StatusUnauthorized, nil)
}

// Login verifies the admin credentials and issues an access token.
func (s *Service) Login(ctx context.Context, username, password string) (LoginResult, error) {
	if err := ctx.Err(); err != nil {
		return LoginResult{}, err
	}
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return LoginResult{}, invalidCredentials()
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.username)) == 1
	ok, err := argon2id.ComparePasswordAndHash(password, s.passwordHash)
	if err != nil || !ok || !userOK {
		return LoginResult{}, invalidCredentials()
	}
	token, expiry, err := s.signAccessToken(s.username)
	if err != nil {
		return LoginResult{}, fmt.Errorf("sign access token: %w", err)
	}
	return LoginResult{Username: s.username, AccessToken: token, AccessExpiry: expiry}, nil
}

// ParseAccessToken validates an access token and returns its subject.
func (s *Service) ParseAccessToken(token string) (string, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return "", common.NewAppError("UNAUTHORIZED", "missing token", http.StatusUnauthorized, nil)
	}
	algorithm, err := extractTokenAlgorithm(trimmed)
	if err != nil {
		return "", common.NewAppError("UNAUTHORIZED", "invalid token", http.StatusUnauthorized, err)
	}
	if s.validator.Algorithm != "" && algorithm != s.validator.Algorithm {
		return "", common.NewAppError("UNAUTHORIZED", "invalid token", http.StatusUnauthorized, fmt.Errorf("unexpected token algorithm %s", algorithm))
	}
	parsed, err := jwt.ParseString(trimmed, jwt.WithKey(algorithm, s.secret), jwt.WithValidate(false))
	if err != nil {
		return "", common.NewAppError("UNAUTHORIZED", "invalid token", http.StatusUnauthorized, err)
	}
	if err := s.validator.Validate(parsed, algorithm, s.now()); err != nil {
		return "", common.NewAppError("UNAUTHORIZED", "invalid token", http.StatusUnauthorized, err)
	}
	return parsed.Subject(), nil
}

func extractTokenAlgorithm(token string) (jwa.SignatureAlgorithm, error) {
	message, err := jws.ParseString(token)
	if err != nil {
		return "", err
	}
	signatures := message.Signatures()
	if len(signatures) == 0 {
		return "", errors.New("auth: token contains no signatures")
	}
	var algorithm jwa.SignatureAlgorithm
	for _, sig := range signatures {
		headers := sig.ProtectedHeaders()
		if headers == nil {
			return "", errors.New("auth: token missing protected headers")
		}
		alg := headers.Algorithm()
		if alg == "" {
			return "", errors.New("auth: token missing algorithm")
		}
		if alg == jwa.NoSignature {
			return "", errors.New("auth: token uses none algorithm")
		}
		if algorithm == "" {
			algorithm = alg
		} else if algorithm != alg {
			return "", errors.New("auth: mixed token algorithms detected")
		}
	}
	return algorithm, nil
}

func (s *Service) signAccessToken(subject string) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.accessTTL)
	token, err := jwt.NewBuilder().
		Subject(subject).
		Issuer(s.issuer).
		Audience([]string{s.audience}).
		IssuedAt(now).
		NotBefore(now.Add(-s.clockSkew)).
		Expiration(expiresAt).
		Claim(roleClaim, RoleAdmin).
		Build()
	if err != nil {
		return "", time.Time{}, err
	}
	signed, err := jwt.Sign(token, jwt.WithKey(s.signer, s.secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return string(signed), expiresAt, nil
}
