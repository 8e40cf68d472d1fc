package services

import (
	"bytes"
	"encoding/base64"
	"image/png"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"

	"certichain/internal/utils"
)

const recoveryCodeCount = 8

// TOTPEnrollment is what the setup endpoint hands back: the shared secret in
// base32, the otpauth:// provisioning URI, and a QR image of it as a base64
// PNG for direct embedding in an <img> tag.
type TOTPEnrollment struct {
	Secret    string `json:"secret"`
	URI       string `json:"uri"`
	QRCodeB64 string `json:"qr_code"`
}

type TOTPService interface {
	GenerateEnrollment(accountEmail string) (*TOTPEnrollment, error)
	// ValidateCode checks a 6-digit code against the secret with one period
	// of clock skew in either direction.
	ValidateCode(secret, code string) bool
	// GenerateRecoveryCodes returns the plaintext codes (shown once) and
	// their bcrypt hashes (stored).
	GenerateRecoveryCodes() (plaintext, hashes []string, err error)
	// ConsumeRecoveryCode matches the code against the stored hashes and, on
	// a hit, returns the remaining hashes with the matched one removed.
	ConsumeRecoveryCode(hashes []string, code string) (remaining []string, ok bool)
}

type totpService struct {
	issuer string
}

func NewTOTPService(issuer string) TOTPService {
	if issuer == "" {
		issuer = "CertiChain"
	}
	return &totpService{issuer: issuer}
}

func (s *totpService) GenerateEnrollment(accountEmail string) (*TOTPEnrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: accountEmail,
	})
	if err != nil {
		return nil, err
	}

	img, err := key.Image(200, 200)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}

	return &TOTPEnrollment{
		Secret:    key.Secret(),
		URI:       key.URL(),
		QRCodeB64: base64.StdEncoding.EncodeToString(buf.Bytes()),
	}, nil
}

func (s *totpService) ValidateCode(secret, code string) bool {
	ok, err := totp.ValidateCustom(code, secret, time.Now(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

func (s *totpService) GenerateRecoveryCodes() ([]string, []string, error) {
	plaintext := make([]string, 0, recoveryCodeCount)
	hashes := make([]string, 0, recoveryCodeCount)
	for i := 0; i < recoveryCodeCount; i++ {
		code, err := utils.NewRecoveryCode()
		if err != nil {
			return nil, nil, err
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
		if err != nil {
			return nil, nil, err
		}
		plaintext = append(plaintext, code)
		hashes = append(hashes, string(hash))
	}
	return plaintext, hashes, nil
}

func (s *totpService) ConsumeRecoveryCode(hashes []string, code string) ([]string, bool) {
	for i, hash := range hashes {
		if bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)) == nil {
			remaining := make([]string, 0, len(hashes)-1)
			remaining = append(remaining, hashes[:i]...)
			remaining = append(remaining, hashes[i+1:]...)
			return remaining, true
		}
	}
	return hashes, false
}
