package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/betlinkr/betlinkr-api/internal/models"
)

// SQLiteWebhookRepository implements WebhookRepository for SQLite.
type SQLiteWebhookRepository struct {
	db *sql.DB
}

// NewSQLiteWebhookRepository creates a new SQLite webhook repository.
func NewSQLiteWebhookRepository(db *sql.DB) *SQLiteWebhookRepository {
	return &SQLiteWebhookRepository{db: db}
}

const webhookColumns = `id, affiliate_id, name, url, secret_encrypted, is_active, created_at, updated_at`

func (r *SQLiteWebhookRepository) Create(ctx context.Context, webhook *models.AffiliateWebhook) error {
	query := `INSERT INTO affiliate_webhooks (` + webhookColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		webhook.ID, webhook.AffiliateID, webhook.Name, webhook.URL,
		webhook.SecretEncrypted, boolToInt(webhook.IsActive),
		webhook.CreatedAt.Format(time.RFC3339), webhook.UpdatedAt.Format(time.RFC3339))
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (r *SQLiteWebhookRepository) GetByID(ctx context.Context, id string) (*models.AffiliateWebhook, error) {
	query := `SELECT ` + webhookColumns + ` FROM affiliate_webhooks WHERE id = ?`
	return scanWebhookOrNil(r.db.QueryRowContext(ctx, query, id))
}

func (r *SQLiteWebhookRepository) GetByAffiliateID(ctx context.Context, affiliateID string) ([]*models.AffiliateWebhook, error) {
	query := `SELECT ` + webhookColumns + ` FROM affiliate_webhooks WHERE affiliate_id = ? ORDER BY created_at`
	return r.queryWebhooks(ctx, query, affiliateID)
}

func (r *SQLiteWebhookRepository) GetActiveByAffiliateID(ctx context.Context, affiliateID string) ([]*models.AffiliateWebhook, error) {
	query := `SELECT ` + webhookColumns + ` FROM affiliate_webhooks WHERE affiliate_id = ? AND is_active = 1 ORDER BY created_at`
	return r.queryWebhooks(ctx, query, affiliateID)
}

func (r *SQLiteWebhookRepository) GetByAffiliateAndName(ctx context.Context, affiliateID, name string) (*models.AffiliateWebhook, error) {
	query := `SELECT ` + webhookColumns + ` FROM affiliate_webhooks WHERE affiliate_id = ? AND name = ?`
	return scanWebhookOrNil(r.db.QueryRowContext(ctx, query, affiliateID, name))
}

func (r *SQLiteWebhookRepository) Update(ctx context.Context, webhook *models.AffiliateWebhook) error {
	query := `UPDATE affiliate_webhooks SET name = ?, url = ?, secret_encrypted = ?, is_active = ?, updated_at = ?
		WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query,
		webhook.Name, webhook.URL, webhook.SecretEncrypted, boolToInt(webhook.IsActive),
		time.Now().UTC().Format(time.RFC3339), webhook.ID)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (r *SQLiteWebhookRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM affiliate_webhooks WHERE id = ?`, id)
	return err
}

func (r *SQLiteWebhookRepository) queryWebhooks(ctx context.Context, query string, args ...any) ([]*models.AffiliateWebhook, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var webhooks []*models.AffiliateWebhook
	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			return nil, err
		}
		webhooks = append(webhooks, w)
	}
	return webhooks, rows.Err()
}

func scanWebhook(row rowScanner) (*models.AffiliateWebhook, error) {
	var w models.AffiliateWebhook
	var isActive int
	var createdAt, updatedAt string
	err := row.Scan(&w.ID, &w.AffiliateID, &w.Name, &w.URL, &w.SecretEncrypted,
		&isActive, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	w.IsActive = isActive != 0
	w.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	w.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &w, nil
}

func scanWebhookOrNil(row rowScanner) (*models.AffiliateWebhook, error) {
	w, err := scanWebhook(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return w, err
}
