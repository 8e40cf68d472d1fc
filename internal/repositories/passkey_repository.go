package repositories

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"certichain/internal/models"
)

type PasskeyRepository interface {
	Create(cred *models.PasskeyCredential) error
	GetByCredentialID(credentialID string) (*models.PasskeyCredential, error)
	ListByAccount(accountID string) ([]*models.PasskeyCredential, error)
	UpdateSignCount(credentialID string, signCount uint32) error
	// Delete removes the credential only when it belongs to accountID and
	// reports whether a row was actually removed.
	Delete(credentialID, accountID string) (bool, error)
}

type passkeyRepository struct {
	DB *sql.DB
}

func NewPasskeyRepository(db *sql.DB) PasskeyRepository {
	return &passkeyRepository{DB: db}
}

const passkeyColumns = `
	credential_id, account_id, public_key, attestation_type, aaguid,
	sign_count, transports, device_type, backup_eligible, backup_state,
	label, created_at
`

func (r *passkeyRepository) Create(cred *models.PasskeyCredential) error {
	const q = `
		INSERT INTO passkey_credentials (
			credential_id, account_id, public_key, attestation_type, aaguid,
			sign_count, transports, device_type, backup_eligible, backup_state, label
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING created_at
	`
	return r.DB.QueryRow(q,
		cred.CredentialID,
		cred.AccountID,
		cred.PublicKey,
		cred.AttestationType,
		cred.AAGUID,
		int64(cred.SignCount),
		pq.Array(cred.Transports),
		cred.DeviceType,
		cred.BackupEligible,
		cred.BackupState,
		cred.Label,
	).Scan(&cred.CreatedAt)
}

func scanPasskey(scan func(...any) error) (*models.PasskeyCredential, error) {
	p := &models.PasskeyCredential{}
	var (
		signCount  int64
		transports pq.StringArray
	)
	err := scan(
		&p.CredentialID, &p.AccountID, &p.PublicKey, &p.AttestationType, &p.AAGUID,
		&signCount, &transports, &p.DeviceType, &p.BackupEligible, &p.BackupState,
		&p.Label, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.SignCount = uint32(signCount)
	p.Transports = []string(transports)
	return p, nil
}

func (r *passkeyRepository) GetByCredentialID(credentialID string) (*models.PasskeyCredential, error) {
	const q = `SELECT ` + passkeyColumns + ` FROM passkey_credentials WHERE credential_id = $1`
	row := r.DB.QueryRow(q, credentialID)
	p, err := scanPasskey(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func (r *passkeyRepository) ListByAccount(accountID string) ([]*models.PasskeyCredential, error) {
	const q = `
		SELECT ` + passkeyColumns + `
		FROM passkey_credentials
		WHERE account_id = $1
		ORDER BY created_at
	`
	rows, err := r.DB.Query(q, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*models.PasskeyCredential
	for rows.Next() {
		p, err := scanPasskey(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r *passkeyRepository) UpdateSignCount(credentialID string, signCount uint32) error {
	_, err := r.DB.Exec(`
		UPDATE passkey_credentials SET sign_count=$1 WHERE credential_id=$2
	`, int64(signCount), credentialID)
	return err
}

func (r *passkeyRepository) Delete(credentialID, accountID string) (bool, error) {
	res, err := r.DB.Exec(`
		DELETE FROM passkey_credentials WHERE credential_id=$1 AND account_id=$2
	`, credentialID, accountID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
