// Package tokens signs and verifies the compact session tokens the auth
// service hands out. Access and refresh tokens share one codec; they differ
// only in the lifetime requested at issuance.
package tokens

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrExpired marks a structurally valid, correctly signed token that is
	// past its expiry. Callers silently refresh on this.
	ErrExpired = errors.New("token expired")
	// ErrInvalid marks everything else: bad signature, wrong issuer,
	// malformed token. Callers force a re-login on this.
	ErrInvalid = errors.New("token invalid")
)

type Identity struct {
	AccountID string
	Username  string
	Role      string
	ProfileID string
}

type Claims struct {
	Username  string `json:"username,omitempty"`
	Role      string `json:"role,omitempty"`
	ProfileID string `json:"profile_id,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) Identity() Identity {
	return Identity{
		AccountID: c.Subject,
		Username:  c.Username,
		Role:      c.Role,
		ProfileID: c.ProfileID,
	}
}

type Codec struct {
	Secret []byte
	Issuer string
	Now    func() time.Time
}

func NewCodec(secret []byte, issuer string) *Codec {
	return &Codec{Secret: secret, Issuer: issuer, Now: time.Now}
}

func (c *Codec) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Codec) Issue(id Identity, lifetime time.Duration) (string, error) {
	now := c.now()
	claims := Claims{
		Username:  id.Username,
		Role:      id.Role,
		ProfileID: id.ProfileID,
		RegisteredClaims: jwt.RegisteredClaims{
			// The jti keeps two tokens issued in the same second from being
			// byte-identical, which the stored-value refresh match relies on.
			ID:        uuid.NewString(),
			Subject:   id.AccountID,
			Issuer:    c.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(lifetime)),
		},
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(c.Secret)
}

// Verify checks signature, issuer and expiry. An elapsed lifetime always
// surfaces as ErrExpired, never ErrInvalid, so callers can distinguish
// "refresh me" from "re-login".
func (c *Codec) Verify(raw string) (*Claims, error) {
	var claims Claims
	tkn, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected sign method")
		}
		return c.Secret, nil
	}, jwt.WithTimeFunc(c.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrInvalid
	}
	if !tkn.Valid {
		return nil, ErrInvalid
	}
	if claims.Issuer != c.Issuer {
		return nil, ErrInvalid
	}
	return &claims, nil
}

// Decode reads claims without verifying the signature. It exists so the
// session service can read a freshly issued refresh token's own expiry;
// never use it for trust decisions.
func (c *Codec) Decode(raw string) (*Claims, error) {
	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return nil, ErrInvalid
	}
	return &claims, nil
}
