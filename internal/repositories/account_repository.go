package repositories

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"certichain/internal/models"
)

// ErrDuplicateEmail maps the unique-index violation on accounts.email so the
// service layer can answer 409 without parsing driver errors itself.
var ErrDuplicateEmail = errors.New("email already registered")

type AccountRepository interface {
	Create(account *models.Account) error
	GetByID(id string) (*models.Account, error)
	GetByEmail(email string) (*models.Account, error)
	UpdateStatus(id, status string) error
	UpdatePassword(id, passwordHash string) error
	Delete(id string) error

	// 2FA helpers
	SetTOTPSecret(id, secret string) error
	EnableTOTP(id string, recoveryCodeHashes []string) error
	DisableTOTP(id string) error
	UpdateRecoveryCodes(id string, recoveryCodeHashes []string) error
}

type accountRepository struct {
	DB *sql.DB
}

func NewAccountRepository(db *sql.DB) AccountRepository {
	return &accountRepository{DB: db}
}

const accountColumns = `
	id, email, full_name, password_hash, role, status,
	totp_secret, totp_enabled, recovery_codes,
	created_at, updated_at
`

func (r *accountRepository) Create(account *models.Account) error {
	const q = `
		INSERT INTO accounts (id, email, full_name, password_hash, role, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`
	err := r.DB.QueryRow(q,
		account.ID,
		account.Email,
		account.FullName,
		account.PasswordHash,
		account.Role,
		account.Status,
	).Scan(&account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateEmail
		}
		return err
	}
	return nil
}

func scanAccount(row *sql.Row) (*models.Account, error) {
	a := &models.Account{}
	var (
		totpSecret sql.NullString
		codes      pq.StringArray
	)
	err := row.Scan(
		&a.ID, &a.Email, &a.FullName, &a.PasswordHash, &a.Role, &a.Status,
		&totpSecret, &a.TOTPEnabled, &codes,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if totpSecret.Valid {
		s := totpSecret.String
		a.TOTPSecret = &s
	}
	a.RecoveryCodes = []string(codes)
	return a, nil
}

func (r *accountRepository) GetByID(id string) (*models.Account, error) {
	const q = `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	account, err := scanAccount(r.DB.QueryRow(q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return account, err
}

// GetByEmail matches case-insensitively: the unique index is on LOWER(email).
func (r *accountRepository) GetByEmail(email string) (*models.Account, error) {
	const q = `SELECT ` + accountColumns + ` FROM accounts WHERE LOWER(email) = LOWER($1)`
	account, err := scanAccount(r.DB.QueryRow(q, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return account, err
}

func (r *accountRepository) UpdateStatus(id, status string) error {
	_, err := r.DB.Exec(`
		UPDATE accounts SET status=$1, updated_at=NOW() WHERE id=$2
	`, status, id)
	return err
}

func (r *accountRepository) UpdatePassword(id, passwordHash string) error {
	_, err := r.DB.Exec(`
		UPDATE accounts SET password_hash=$1, updated_at=NOW() WHERE id=$2
	`, passwordHash, id)
	return err
}

func (r *accountRepository) Delete(id string) error {
	_, err := r.DB.Exec(`DELETE FROM accounts WHERE id=$1`, id)
	return err
}

// ===== 2FA helpers =====

func (r *accountRepository) SetTOTPSecret(id, secret string) error {
	// Enrollment in progress: secret stored, enabled stays false until the
	// setup code is verified.
	_, err := r.DB.Exec(`
		UPDATE accounts
		SET totp_secret=$1, totp_enabled=FALSE, recovery_codes=NULL, updated_at=NOW()
		WHERE id=$2
	`, secret, id)
	return err
}

func (r *accountRepository) EnableTOTP(id string, recoveryCodeHashes []string) error {
	_, err := r.DB.Exec(`
		UPDATE accounts
		SET totp_enabled=TRUE, recovery_codes=$1, updated_at=NOW()
		WHERE id=$2 AND totp_secret IS NOT NULL
	`, pq.Array(recoveryCodeHashes), id)
	return err
}

func (r *accountRepository) DisableTOTP(id string) error {
	_, err := r.DB.Exec(`
		UPDATE accounts
		SET totp_secret=NULL, totp_enabled=FALSE, recovery_codes=NULL, updated_at=NOW()
		WHERE id=$1
	`, id)
	return err
}

func (r *accountRepository) UpdateRecoveryCodes(id string, recoveryCodeHashes []string) error {
	_, err := r.DB.Exec(`
		UPDATE accounts SET recovery_codes=$1, updated_at=NOW() WHERE id=$2
	`, pq.Array(recoveryCodeHashes), id)
	return err
}
