package models

import (
	"bytes"
	"encoding/base64"
	"image/png"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// TOTPIssuer is the label shown in authenticator apps.
const TOTPIssuer = "Wellness Hub"

// NewTOTPKey generates a fresh TOTP secret for an account.
func NewTOTPKey(username string) (*otp.Key, error) {
	return totp.Generate(totp.GenerateOpts{
		Issuer:      TOTPIssuer,
		AccountName: username,
	})
}

// TOTPQRCode renders the key as a base64-encoded PNG for enrollment.
func TOTPQRCode(key *otp.Key) (string, error) {
	img, err := key.Image(200, 200)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// VerifyTOTPCode verifies a TOTP code against a stored secret.
func VerifyTOTPCode(secret, code string) bool {
	return totp.Validate(code, secret)
}
