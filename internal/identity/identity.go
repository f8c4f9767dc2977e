// Package identity supplies the authenticated owner that scopes every
// history operation. The authentication protocol itself lives elsewhere;
// this package only reads and checks bearer tokens.
package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	nanoid "github.com/matoous/go-nanoid/v2"
)

var (
	// ErrNoSession indicates no authenticated session is present.
	ErrNoSession = errors.New("no authenticated session")

	// ErrInvalidToken indicates a token that failed parsing or validation.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired indicates a token past its expiry.
	ErrTokenExpired = errors.New("token expired")

	// ErrSecretTooShort is returned when the HMAC secret is under 32 bytes.
	ErrSecretTooShort = errors.New("jwt secret must be at least 32 bytes")
)

// Session is an authenticated identity.
type Session struct {
	OwnerID   string
	Token     string
	ExpiresAt time.Time
}

// Provider reports the current session, if any.
type Provider interface {
	Current() (Session, bool)
}

// Require returns the current session or ErrNoSession.
func Require(p Provider) (Session, error) {
	if p == nil {
		return Session{}, ErrNoSession
	}
	s, ok := p.Current()
	if !ok || s.OwnerID == "" {
		return Session{}, ErrNoSession
	}
	return s, nil
}

// Static is a Provider with a fixed session.
type Static Session

// Current implements Provider.
func (s Static) Current() (Session, bool) {
	return Session(s), s.OwnerID != ""
}

// TokenProvider reads the owner from a bearer token issued by the backend.
// The client does not hold the signing key, so the signature is not checked
// here; the backend verifies it on every request.
type TokenProvider struct {
	session Session
	now     func() time.Time
}

// FromToken parses token without verifying its signature.
func FromToken(token string) (*TokenProvider, error) {
	if token == "" {
		return nil, ErrNoSession
	}
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	s := Session{OwnerID: claims.Subject, Token: token}
	if claims.ExpiresAt != nil {
		s.ExpiresAt = claims.ExpiresAt.Time
	}
	return &TokenProvider{session: s, now: time.Now}, nil
}

// Current implements Provider. An expired token yields no session.
func (p *TokenProvider) Current() (Session, bool) {
	if !p.session.ExpiresAt.IsZero() && !p.now().Before(p.session.ExpiresAt) {
		return Session{}, false
	}
	return p.session, true
}

// Verifier validates HMAC-signed tokens on the backend.
type Verifier struct {
	Secret []byte
	Issuer string
}

// Verify parses and validates tokenString and returns its session.
func (v Verifier) Verify(tokenString string) (Session, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.Issuer))
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return v.Secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Session{}, ErrTokenExpired
		}
		return Session{}, ErrInvalidToken
	}
	if !token.Valid || claims.Subject == "" {
		return Session{}, ErrInvalidToken
	}

	s := Session{OwnerID: claims.Subject, Token: tokenString}
	if claims.ExpiresAt != nil {
		s.ExpiresAt = claims.ExpiresAt.Time
	}
	return s, nil
}

// Issue signs a token for subject valid for ttl.
func (v Verifier) Issue(subject string, ttl time.Duration) (string, error) {
	if len(v.Secret) < 32 {
		return "", ErrSecretTooShort
	}

	tokenID, err := nanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate token ID: %w", err)
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    v.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        tokenID,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.Secret)
}
