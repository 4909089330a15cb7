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
	"encoding/base64"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/skip2/go-qrcode"
)

const backupCodeCount = 10

// TOTPSetup is returned once, at enrolment time, to the authenticated
// caller. Persisting it (via AuthCore.EnableTOTP) is what actually turns
// TOTP on; until that save, the account is unaffected.
type TOTPSetup struct {
	Secret           string
	QRCodeDataURL    string
	BackupCodes      []string
}

// generateTOTPSetup mints a fresh RFC 6238 secret, renders its otpauth://
// URI as a QR code data URL, and generates the ten backup codes.
func generateTOTPSetup(accountEmail string) (TOTPSetup, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      "Peanut Agent Gateway",
		AccountName: accountEmail,
		Period:      30,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return TOTPSetup{}, InternalError("generate totp secret", err)
	}

	png, err := qrcode.Encode(key.URL(), qrcode.Medium, 256)
	if err != nil {
		return TOTPSetup{}, InternalError("render totp qr code", err)
	}

	codes := make([]string, backupCodeCount)
	for i := range codes {
		codes[i] = newBackupCode()
	}

	return TOTPSetup{
		Secret:        key.Secret(),
		QRCodeDataURL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
		BackupCodes:   codes,
	}, nil
}

// verifyTOTPCode checks code against secret using the standard RFC 6238
// window of ±1 step (30s), per spec.md §9's resolution of the open
// question.
func verifyTOTPCode(secret, code string) bool {
	valid, err := totp.ValidateCustom(code, secret, time.Now(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && valid
}

// isBackupCodeShape reports whether code looks like one of the gateway's
// backup codes (8 uppercase hex characters) rather than a 6-digit TOTP
// code. AuthCore.VerifyTOTP runs exactly one check based on this: a code
// of this shape is checked only against the backup codes, any other code
// only against the TOTP secret.
func isBackupCodeShape(code string) bool {
	if len(code) != 8 {
		return false
	}
	for _, c := range []byte(code) {
		if !isUpperHex(c) {
			return false
		}
	}
	return true
}

func isUpperHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'A' && c <= 'F')
}
