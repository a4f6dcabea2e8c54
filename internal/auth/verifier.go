// Package auth provides bearer token verification for the API.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Verifier validates bearer tokens and extracts the caller's role.
// Supports modes: dev (no verify, token is subject:role) and hmac (HS256).
type Verifier struct {
	Mode       string
	HMACSecret []byte
}

// Claims is the JWT payload accepted in hmac mode.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type Principal struct {
	Subject string
	Role    string
}

func NewVerifier(mode, secret string) *Verifier {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode == "" {
		mode = "dev"
	}
	return &Verifier{Mode: mode, HMACSecret: []byte(secret)}
}

func (v *Verifier) Verify(token string) (Principal, error) {
	switch v.Mode {
	case "dev":
		parts := strings.Split(token, ":")
		if len(parts) >= 2 && parts[0] != "" {
			return Principal{Subject: parts[0], Role: strings.ToLower(parts[1])}, nil
		}
		return Principal{}, errors.New("invalid dev token; expected subject:role")
	case "hmac":
		claims := &Claims{}
		_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
			return v.HMACSecret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil {
			return Principal{}, fmt.Errorf("invalid token: %w", err)
		}
		role := strings.ToLower(claims.Role)
		if role == "" {
			role = RoleUser
		}
		return Principal{Subject: claims.Subject, Role: role}, nil
	}
	return Principal{}, errors.New("unsupported auth mode")
}

// Issue signs an HS256 token; used by tooling and tests.
func (v *Verifier) Issue(subject, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Subject:   subject,
		},
	})
	return token.SignedString(v.HMACSecret)
}
