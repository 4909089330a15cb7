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
	"net/http"
	"time"
)

// AuthHandlers wires AuthCore onto the /auth/* routes from spec.md §6.
type AuthHandlers struct {
	auth   *AuthCore
	minter *SessionMinter
	prod   bool
}

func NewAuthHandlers(auth *AuthCore, minter *SessionMinter, prod bool) *AuthHandlers {
	return &AuthHandlers{auth: auth, minter: minter, prod: prod}
}

func (h *AuthHandlers) setSessionCookie(w http.ResponseWriter, token string, exp time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  exp,
		HttpOnly: true,
		Secure:   h.prod,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *AuthHandlers) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.prod,
		SameSite: http.SameSiteStrictMode,
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	RequireTOTP bool   `json:"require_totp"`
	TempToken   string `json:"temp_token,omitempty"`
}

func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.auth.Login(r.Context(), req.Email, req.Password, actorFromRequest(r))
	if err != nil {
		writeError(w, err)
		return
	}

	if result.RequireTOTP {
		writeJSON(w, http.StatusOK, loginResponse{RequireTOTP: true, TempToken: result.TempToken})
		return
	}

	h.setSessionCookie(w, result.SessionToken, result.SessionExp)
	writeJSON(w, http.StatusOK, loginResponse{RequireTOTP: false})
}

type totpVerifyRequest struct {
	TempToken string `json:"temp_token"`
	TOTPCode  string `json:"totp_code"`
}

func (h *AuthHandlers) VerifyTOTP(w http.ResponseWriter, r *http.Request) {
	var req totpVerifyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.auth.VerifyTOTP(r.Context(), req.TempToken, req.TOTPCode, actorFromRequest(r))
	if err != nil {
		writeError(w, err)
		return
	}

	h.setSessionCookie(w, result.SessionToken, result.SessionExp)
	writeJSON(w, http.StatusOK, loginResponse{RequireTOTP: false})
}

func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	_ = h.auth.Logout(r.Context(), actorFromRequest(r))
	h.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type userProfile struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Role        Role   `json:"role"`
	TOTPEnabled bool   `json:"totp_enabled"`
}

func (h *AuthHandlers) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := sessionFromContext(r.Context())
	if !ok {
		writeError(w, UnauthorizedError("authentication required"))
		return
	}
	u, err := h.auth.Profile(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, userProfile{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Role:        u.Role,
		TOTPEnabled: u.TOTPEnabled,
	})
}

func (h *AuthHandlers) SetupTOTP(w http.ResponseWriter, r *http.Request) {
	claims, ok := sessionFromContext(r.Context())
	if !ok {
		writeError(w, UnauthorizedError("authentication required"))
		return
	}

	setup, err := generateTOTPSetup(claims.Email)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.auth.EnableTOTP(r.Context(), claims.UserID, setup, actorFromRequest(r)); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"secret":          setup.Secret,
		"qr_code_data_url": setup.QRCodeDataURL,
		"backup_codes":    setup.BackupCodes,
	})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (h *AuthHandlers) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims, ok := sessionFromContext(r.Context())
	if !ok {
		writeError(w, UnauthorizedError("authentication required"))
		return
	}

	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.auth.ChangePassword(r.Context(), claims.UserID, req.CurrentPassword, req.NewPassword, actorFromRequest(r)); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
