package repositories

import (
	"database/sql"

	"certichain/internal/models"
)

type ActivityRepository interface {
	Create(entry *models.ActivityEntry) error
	ListByAccount(accountID string, limit, offset int) ([]*models.ActivityEntry, error)
}

type activityRepository struct {
	DB *sql.DB
}

func NewActivityRepository(db *sql.DB) ActivityRepository {
	return &activityRepository{DB: db}
}

func (r *activityRepository) Create(entry *models.ActivityEntry) error {
	const q = `
		INSERT INTO activity_logs (id, account_id, action, details, ip, user_agent)
		VALUES ($1, NULLIF($2,''), $3, $4, $5, $6)
		RETURNING created_at
	`
	return r.DB.QueryRow(q,
		entry.ID,
		entry.AccountID,
		entry.Action,
		entry.Details,
		entry.IP,
		entry.UserAgent,
	).Scan(&entry.CreatedAt)
}

func (r *activityRepository) ListByAccount(accountID string, limit, offset int) ([]*models.ActivityEntry, error) {
	const q = `
		SELECT id, COALESCE(account_id,''), action, details, ip, user_agent, created_at
		FROM activity_logs
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.DB.Query(q, accountID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*models.ActivityEntry
	for rows.Next() {
		e := &models.ActivityEntry{}
		if err := rows.Scan(&e.ID, &e.AccountID, &e.Action, &e.Details, &e.IP, &e.UserAgent, &e.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
