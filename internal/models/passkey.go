package models

import (
	"encoding/base64"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
)

// PasskeyCredential is one registered WebAuthn authenticator. CredentialID is
// the base64url-encoded raw credential id and acts as the primary key.
type PasskeyCredential struct {
	CredentialID    string    `json:"credential_id"`
	AccountID       string    `json:"-"`
	PublicKey       []byte    `json:"-"`
	AttestationType string    `json:"-"`
	AAGUID          []byte    `json:"-"`
	SignCount       uint32    `json:"-"`
	Transports      []string  `json:"transports,omitempty"`
	DeviceType      string    `json:"device_type"` // single_device / multi_device
	BackupEligible  bool      `json:"backup_eligible"`
	BackupState     bool      `json:"-"`
	Label           string    `json:"label"`
	CreatedAt       time.Time `json:"created_at"`
}

// EncodeCredentialID converts a raw credential id into its storage form.
func EncodeCredentialID(raw []byte) string {
	return base64.RawURLEncoding.EncodeToString(raw)
}

// RawCredentialID decodes the stored credential id back to raw bytes.
func (p *PasskeyCredential) RawCredentialID() []byte {
	raw, err := base64.RawURLEncoding.DecodeString(p.CredentialID)
	if err != nil {
		return nil
	}
	return raw
}

// ToWebauthn converts the stored record into the library's credential type so
// assertion verification runs against the persisted key and counter.
func (p *PasskeyCredential) ToWebauthn() webauthn.Credential {
	transports := make([]protocol.AuthenticatorTransport, 0, len(p.Transports))
	for _, t := range p.Transports {
		transports = append(transports, protocol.AuthenticatorTransport(t))
	}
	return webauthn.Credential{
		ID:              p.RawCredentialID(),
		PublicKey:       p.PublicKey,
		AttestationType: p.AttestationType,
		Transport:       transports,
		Flags: webauthn.CredentialFlags{
			BackupEligible: p.BackupEligible,
			BackupState:    p.BackupState,
		},
		Authenticator: webauthn.Authenticator{
			AAGUID:    p.AAGUID,
			SignCount: p.SignCount,
		},
	}
}

// FromWebauthn builds a storable record from a freshly verified registration.
func FromWebauthn(accountID, label string, cred *webauthn.Credential) *PasskeyCredential {
	transports := make([]string, 0, len(cred.Transport))
	for _, t := range cred.Transport {
		transports = append(transports, string(t))
	}
	deviceType := "single_device"
	if cred.Flags.BackupEligible {
		deviceType = "multi_device"
	}
	return &PasskeyCredential{
		CredentialID:    EncodeCredentialID(cred.ID),
		AccountID:       accountID,
		PublicKey:       cred.PublicKey,
		AttestationType: cred.AttestationType,
		AAGUID:          cred.Authenticator.AAGUID,
		SignCount:       cred.Authenticator.SignCount,
		Transports:      transports,
		DeviceType:      deviceType,
		BackupEligible:  cred.Flags.BackupEligible,
		BackupState:     cred.Flags.BackupState,
		Label:           label,
	}
}
