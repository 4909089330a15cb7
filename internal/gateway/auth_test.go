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
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
)

func newTestAuthCore(t *testing.T, store *fakeStore) *AuthCore {
	t.Helper()
	return NewAuthCore(store, NewAuditChain(store), NewSessionMinter("test-secret-key-not-for-prod"))
}

func seedUser(t *testing.T, store *fakeStore, email, password string) User {
	t.Helper()
	hash, err := hashPassword(password)
	if err != nil {
		t.Fatalf("hashPassword: %v", err)
	}
	u := User{
		ID:        newID(),
		Email:     email,
		Role:      RoleOperator,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	u.PasswordHash = hash
	if err := store.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return u
}

func TestLoginWithoutTOTPMintsSessionDirectly(t *testing.T) {
	store := newFakeStore()
	auth := newTestAuthCore(t, store)
	seedUser(t, store, "noauth@example.com", "correct-password-123")

	result, err := auth.Login(context.Background(), "noauth@example.com", "correct-password-123", AuditActor{})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if result.RequireTOTP {
		t.Error("RequireTOTP = true for a user with totp disabled, want false")
	}
	if result.SessionToken == "" {
		t.Error("SessionToken is empty, want a minted session")
	}
}

func TestLoginWithTOTPEnabledCannotAuthenticateWithoutVerify(t *testing.T) {
	store := newFakeStore()
	auth := newTestAuthCore(t, store)
	u := seedUser(t, store, "totp@example.com", "correct-password-123")

	setup, err := generateTOTPSetup(u.Email)
	if err != nil {
		t.Fatalf("generateTOTPSetup: %v", err)
	}
	if err := auth.EnableTOTP(context.Background(), u.ID, setup, AuditActor{UserID: u.ID}); err != nil {
		t.Fatalf("EnableTOTP: %v", err)
	}

	result, err := auth.Login(context.Background(), "totp@example.com", "correct-password-123", AuditActor{})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !result.RequireTOTP {
		t.Fatal("RequireTOTP = false for a user with totp enabled, want true")
	}
	if result.SessionToken != "" {
		t.Error("Login minted a session token before TOTP verification, want none")
	}
	if result.TempToken == "" {
		t.Error("TempToken is empty, want an intermediate token")
	}

	// The intermediate token alone must not pass as a session: parsing it
	// as a session must fail since its "typ" claim is not "session".
	if _, err := auth.minter.ParseSession(result.TempToken); err == nil {
		t.Error("ParseSession accepted an intermediate token, want rejection")
	}
}

func TestVerifyTOTPWithValidCodeCompletesLogin(t *testing.T) {
	store := newFakeStore()
	auth := newTestAuthCore(t, store)
	u := seedUser(t, store, "totp2@example.com", "correct-password-123")

	setup, err := generateTOTPSetup(u.Email)
	if err != nil {
		t.Fatalf("generateTOTPSetup: %v", err)
	}
	if err := auth.EnableTOTP(context.Background(), u.ID, setup, AuditActor{UserID: u.ID}); err != nil {
		t.Fatalf("EnableTOTP: %v", err)
	}

	login, err := auth.Login(context.Background(), "totp2@example.com", "correct-password-123", AuditActor{})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	code, err := totp.GenerateCode(setup.Secret, time.Now())
	if err != nil {
		t.Fatalf("totp.GenerateCode: %v", err)
	}

	result, err := auth.VerifyTOTP(context.Background(), login.TempToken, code, AuditActor{})
	if err != nil {
		t.Fatalf("VerifyTOTP: %v", err)
	}
	if result.SessionToken == "" {
		t.Error("SessionToken is empty after a valid TOTP code, want a minted session")
	}
}

func TestVerifyTOTPWithWrongCodeFails(t *testing.T) {
	store := newFakeStore()
	auth := newTestAuthCore(t, store)
	u := seedUser(t, store, "totp3@example.com", "correct-password-123")

	setup, err := generateTOTPSetup(u.Email)
	if err != nil {
		t.Fatalf("generateTOTPSetup: %v", err)
	}
	if err := auth.EnableTOTP(context.Background(), u.ID, setup, AuditActor{UserID: u.ID}); err != nil {
		t.Fatalf("EnableTOTP: %v", err)
	}

	login, err := auth.Login(context.Background(), "totp3@example.com", "correct-password-123", AuditActor{})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if _, err := auth.VerifyTOTP(context.Background(), login.TempToken, "000000", AuditActor{}); err == nil {
		t.Error("VerifyTOTP with a wrong code succeeded, want UNAUTHORIZED")
	}
}

func TestBackupCodeIsSingleUse(t *testing.T) {
	store := newFakeStore()
	auth := newTestAuthCore(t, store)
	u := seedUser(t, store, "backup@example.com", "correct-password-123")

	setup, err := generateTOTPSetup(u.Email)
	if err != nil {
		t.Fatalf("generateTOTPSetup: %v", err)
	}
	if err := auth.EnableTOTP(context.Background(), u.ID, setup, AuditActor{UserID: u.ID}); err != nil {
		t.Fatalf("EnableTOTP: %v", err)
	}
	code := setup.BackupCodes[0]

	login1, err := auth.Login(context.Background(), "backup@example.com", "correct-password-123", AuditActor{})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := auth.VerifyTOTP(context.Background(), login1.TempToken, code, AuditActor{}); err != nil {
		t.Fatalf("first use of backup code failed: %v", err)
	}

	login2, err := auth.Login(context.Background(), "backup@example.com", "correct-password-123", AuditActor{})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := auth.VerifyTOTP(context.Background(), login2.TempToken, code, AuditActor{}); err == nil {
		t.Error("second use of an already-consumed backup code succeeded, want failure")
	}
}

func TestChangePasswordRejectsWrongCurrentPassword(t *testing.T) {
	store := newFakeStore()
	auth := newTestAuthCore(t, store)
	u := seedUser(t, store, "pw@example.com", "correct-password-123")

	err := auth.ChangePassword(context.Background(), u.ID, "wrong-password", "new-password-456", AuditActor{UserID: u.ID})
	if err == nil {
		t.Error("ChangePassword with the wrong current password succeeded, want UNAUTHORIZED")
	}
}

func TestChangePasswordEnforcesPolicyOnNewPassword(t *testing.T) {
	store := newFakeStore()
	auth := newTestAuthCore(t, store)
	u := seedUser(t, store, "pw2@example.com", "correct-password-123")

	err := auth.ChangePassword(context.Background(), u.ID, "correct-password-123", "short", AuditActor{UserID: u.ID})
	if err == nil {
		t.Error("ChangePassword with a too-short new password succeeded, want VALIDATION_ERROR")
	}
}
