// Copyright 2025 Peanut Labs
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package gateway

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	sessionTTL      = 8 * time.Hour
	intermediateTTL = 10 * time.Minute

	sessionCookieName = "auth_token"

	// tokenTypeSession and tokenTypeIntermediate are the only two values
	// the "typ" claim ever carries. Both claims structs share one HMAC
	// secret, so this is the sole thing that stops a validly-signed
	// intermediate token from decoding as a session: ParseSession and
	// ParseIntermediate each reject any token whose "typ" isn't theirs.
	tokenTypeSession      = "session"
	tokenTypeIntermediate = "intermediate"
)

// sessionClaims carries the fields spec.md §4.C names for the session
// token: user_id, email, role, totp_verified, session_id, issued_at,
// expires_at. jwt.RegisteredClaims already supplies IssuedAt/ExpiresAt,
// so only the gateway-specific fields are added here, following the
// and161185-goph-keeper pattern of a signed HS256 jwt.RegisteredClaims
// token (internal/service/auth.go) generalized with custom claims.
type sessionClaims struct {
	jwt.RegisteredClaims
	TokenType    string `json:"typ"`
	UserID       string `json:"user_id"`
	Email        string `json:"email"`
	Role         Role   `json:"role"`
	TOTPVerified bool   `json:"totp_verified"`
	SessionID    string `json:"session_id"`
}

// intermediateClaims carries the fields spec.md's glossary names for the
// intermediate token: user_id, a nonce, and an expiry. It is deliberately
// a distinct claims type from sessionClaims so a session token can never
// be mistaken for (or replace) an intermediate one at the totp/verify
// endpoint — enforced by the "typ" claim both structs carry, since the
// two token kinds share one signing secret and are otherwise
// structurally compatible enough for encoding/json to decode one as the
// other without error.
type intermediateClaims struct {
	jwt.RegisteredClaims
	TokenType string `json:"typ"`
	UserID    string `json:"user_id"`
	Nonce     string `json:"nonce"`
}

// SessionMinter signs and parses both token kinds with one HMAC secret.
type SessionMinter struct {
	secret []byte
}

func NewSessionMinter(secret string) *SessionMinter {
	return &SessionMinter{secret: []byte(secret)}
}

// MintSession issues an 8-hour session token for an authenticated user.
func (m *SessionMinter) MintSession(u User, totpVerified bool) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(sessionTTL)
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		TokenType:    tokenTypeSession,
		UserID:       u.ID,
		Email:        u.Email,
		Role:         u.Role,
		TOTPVerified: totpVerified,
		SessionID:    newID(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, InternalError("sign session token", err)
	}
	return signed, exp, nil
}

// ParseSession validates and decodes a session token from a cookie value.
// An intermediate token is validly signed with the same secret but carries
// "typ":"intermediate" instead of "typ":"session", so it is rejected here
// even though it parses and verifies cleanly.
func (m *SessionMinter) ParseSession(token string) (sessionClaims, error) {
	var claims sessionClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	})
	if err != nil || !parsed.Valid || claims.TokenType != tokenTypeSession {
		return sessionClaims{}, UnauthorizedError("invalid or expired session")
	}
	return claims, nil
}

// MintIntermediate issues a 10-minute token accepted only at
// /auth/totp/verify.
func (m *SessionMinter) MintIntermediate(userID string) (string, error) {
	now := time.Now()
	claims := intermediateClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(intermediateTTL)),
		},
		TokenType: tokenTypeIntermediate,
		UserID:    userID,
		Nonce:     newID(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", InternalError("sign intermediate token", err)
	}
	return signed, nil
}

// ParseIntermediate validates and decodes an intermediate token. Expired or
// malformed tokens fail UNAUTHORIZED per spec.md §4.C, with no further
// detail surfaced to the caller — a validly-signed session token, which
// carries "typ":"session" rather than "typ":"intermediate", is rejected
// the same way.
func (m *SessionMinter) ParseIntermediate(token string) (intermediateClaims, error) {
	var claims intermediateClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	})
	if err != nil || !parsed.Valid || claims.TokenType != tokenTypeIntermediate {
		return intermediateClaims{}, UnauthorizedError("invalid or expired token")
	}
	return claims, nil
}
