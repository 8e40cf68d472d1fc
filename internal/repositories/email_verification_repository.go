package repositories

import (
	"database/sql"
	"errors"
	"time"

	"certichain/internal/models"
)

type EmailVerificationRepository interface {
	Create(accountID, tokenHash string, expiresAt time.Time) (*models.EmailVerification, error)
	GetByTokenHash(tokenHash string) (*models.EmailVerification, error)
	MarkRedeemed(id int64) error
	DeleteForAccount(accountID string) error
}

type emailVerificationRepository struct {
	DB *sql.DB
}

func NewEmailVerificationRepository(db *sql.DB) EmailVerificationRepository {
	return &emailVerificationRepository{DB: db}
}

func (r *emailVerificationRepository) Create(accountID, tokenHash string, expiresAt time.Time) (*models.EmailVerification, error) {
	const q = `
		INSERT INTO email_verifications (account_id, token_hash, expires_at)
		VALUES ($1, $2, $3)
		RETURNING id, sent_at
	`
	v := &models.EmailVerification{AccountID: accountID, TokenHash: tokenHash, ExpiresAt: expiresAt}
	if err := r.DB.QueryRow(q, accountID, tokenHash, expiresAt).Scan(&v.ID, &v.SentAt); err != nil {
		return nil, err
	}
	return v, nil
}

func (r *emailVerificationRepository) GetByTokenHash(tokenHash string) (*models.EmailVerification, error) {
	const q = `
		SELECT id, account_id, token_hash, sent_at, expires_at, redeemed
		FROM email_verifications
		WHERE token_hash = $1
	`
	v := &models.EmailVerification{}
	err := r.DB.QueryRow(q, tokenHash).Scan(
		&v.ID, &v.AccountID, &v.TokenHash, &v.SentAt, &v.ExpiresAt, &v.Redeemed,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (r *emailVerificationRepository) MarkRedeemed(id int64) error {
	_, err := r.DB.Exec(`UPDATE email_verifications SET redeemed=TRUE WHERE id=$1`, id)
	return err
}

func (r *emailVerificationRepository) DeleteForAccount(accountID string) error {
	_, err := r.DB.Exec(`DELETE FROM email_verifications WHERE account_id=$1`, accountID)
	return err
}
