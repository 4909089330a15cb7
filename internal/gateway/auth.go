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
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/peanutlabs/agent-gateway/internal/shared/logger"
)

// AuthCore implements the login state machine, TOTP enrolment, and
// password management from spec.md §4.C.
type AuthCore struct {
	store  Store
	audit  *AuditChain
	minter *SessionMinter
	log    *logger.Logger
}

func NewAuthCore(store Store, audit *AuditChain, minter *SessionMinter) *AuthCore {
	return &AuthCore{store: store, audit: audit, minter: minter, log: logger.New("auth")}
}

// LoginResult reports how the login call should continue: either a fully
// minted session, or a requirement to complete TOTP with an intermediate
// token.
type LoginResult struct {
	RequireTOTP  bool
	TempToken    string
	SessionToken string
	SessionExp   time.Time
	User         User
}

// Login is the top half of the state machine in spec.md §4.C: verify
// password, and either mint a session directly (no TOTP) or mint an
// intermediate token and require /auth/totp/verify.
func (a *AuthCore) Login(ctx context.Context, email, password string, actor AuditActor) (LoginResult, error) {
	u, err := a.store.GetUserByEmail(ctx, email)
	if err != nil {
		a.recordLoginFailure(ctx, actor, email)
		return LoginResult{}, UnauthorizedError("Invalid email or password")
	}

	if !verifyPassword(password, u.PasswordHash) {
		a.recordLoginFailure(ctx, actor, email)
		return LoginResult{}, UnauthorizedError("Invalid email or password")
	}

	if !u.TOTPEnabled {
		return a.completeLogin(ctx, u, false, "password", actor)
	}

	temp, err := a.minter.MintIntermediate(u.ID)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{RequireTOTP: true, TempToken: temp, User: u}, nil
}

func (a *AuthCore) recordLoginFailure(ctx context.Context, actor AuditActor, attemptedEmail string) {
	actor.Email = attemptedEmail
	_ = a.audit.Append(ctx, "auth.login_failed", "user", "", actor, map[string]interface{}{
		"email": strings.ToLower(attemptedEmail),
	})
}

// VerifyTOTP is the bottom half of the state machine: validate the
// intermediate token, then check the code against either the TOTP secret
// (RFC 6238, ±1 step) or the backup-code set (single-use).
func (a *AuthCore) VerifyTOTP(ctx context.Context, tempToken, code string, actor AuditActor) (LoginResult, error) {
	claims, err := a.minter.ParseIntermediate(tempToken)
	if err != nil {
		return LoginResult{}, err
	}

	u, err := a.store.GetUserByID(ctx, claims.UserID)
	if err != nil {
		return LoginResult{}, UnauthorizedError("invalid or expired token")
	}

	usedBackup := false
	if isBackupCodeShape(code) {
		next, consumed := u.useBackupCode(strings.ToUpper(code))
		if !consumed {
			return LoginResult{}, UnauthorizedError("invalid or expired token")
		}
		u = next
		usedBackup = true
		if err := a.store.UpdateUser(ctx, u); err != nil {
			return LoginResult{}, InternalError("persist consumed backup code", err)
		}
	} else if !verifyTOTPCode(u.TOTPSecret, code) {
		return LoginResult{}, UnauthorizedError("invalid or expired token")
	}

	method := "totp"
	if usedBackup {
		method = "backup_code"
	}
	return a.completeLogin(ctx, u, true, method, actor)
}

func (a *AuthCore) completeLogin(ctx context.Context, u User, totpVerified bool, method string, actor AuditActor) (LoginResult, error) {
	now := time.Now().UTC()
	u = u.recordLogin(now)
	if err := a.store.UpdateUser(ctx, u); err != nil {
		return LoginResult{}, InternalError("record login", err)
	}

	token, exp, err := a.minter.MintSession(u, totpVerified)
	if err != nil {
		return LoginResult{}, err
	}

	actor.UserID = u.ID
	actor.Email = u.Email
	if err := a.audit.Append(ctx, "auth.login", "user", u.ID, actor, map[string]interface{}{
		"method": method,
	}); err != nil {
		return LoginResult{}, err
	}

	return LoginResult{SessionToken: token, SessionExp: exp, User: u}, nil
}

// Profile returns the current state of a user for /auth/me.
func (a *AuthCore) Profile(ctx context.Context, userID string) (User, error) {
	u, err := a.store.GetUserByID(ctx, userID)
	if err != nil {
		return User{}, NotFoundError("user")
	}
	return u, nil
}

// Logout appends auth.logout. Sessions are stateless JWTs, so there is no
// server-side revocation to perform; the handler clears the cookie.
func (a *AuthCore) Logout(ctx context.Context, actor AuditActor) error {
	return a.audit.Append(ctx, "auth.logout", "user", actor.UserID, actor, nil)
}

// EnableTOTP persists a freshly generated secret and backup codes,
// turning TOTP on for the user. Until this call, the setup the caller
// received from /auth/totp/setup has no effect.
func (a *AuthCore) EnableTOTP(ctx context.Context, userID string, setup TOTPSetup, actor AuditActor) error {
	u, err := a.store.GetUserByID(ctx, userID)
	if err != nil {
		return NotFoundError("user")
	}
	u = u.enableTOTP(setup.Secret, setup.BackupCodes, time.Now().UTC())
	if err := a.store.UpdateUser(ctx, u); err != nil {
		return InternalError("enable totp", err)
	}
	return a.audit.Append(ctx, "auth.totp_enabled", "user", u.ID, actor, nil)
}

// ChangePassword requires the current password, enforces the length
// policy, writes a new hash, and appends auth.password_changed.
func (a *AuthCore) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string, actor AuditActor) error {
	u, err := a.store.GetUserByID(ctx, userID)
	if err != nil {
		return NotFoundError("user")
	}
	if !verifyPassword(currentPassword, u.PasswordHash) {
		return UnauthorizedError("current password is incorrect")
	}
	if err := validatePasswordPolicy(newPassword); err != nil {
		return err
	}

	hash, err := hashPassword(newPassword)
	if err != nil {
		return InternalError("hash password", err)
	}
	u = u.withPasswordHash(hash, time.Now().UTC())
	if err := a.store.UpdateUser(ctx, u); err != nil {
		return InternalError("change password", err)
	}
	return a.audit.Append(ctx, "auth.password_changed", "user", u.ID, actor, nil)
}

// CreateUser creates an administratively-provisioned user, used both for
// the seeded admin at startup and for any future admin-facing user
// management.
func (a *AuthCore) CreateUser(ctx context.Context, email, displayName, password string, role Role) (User, error) {
	if _, err := mail.ParseAddress(email); err != nil {
		return User{}, ValidationError("email is not a valid address")
	}
	if !validRole(role) {
		return User{}, ValidationErrorf("invalid role %q", role)
	}
	if err := validatePasswordPolicy(password); err != nil {
		return User{}, err
	}

	hash, err := hashPassword(password)
	if err != nil {
		return User{}, InternalError("hash password", err)
	}

	now := time.Now().UTC()
	u := User{
		ID:           newID(),
		Email:        strings.ToLower(email),
		DisplayName:  displayName,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.store.CreateUser(ctx, u); err != nil {
		return User{}, err
	}
	return u, nil
}
