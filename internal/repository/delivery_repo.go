package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/betlinkr/betlinkr-api/internal/models"
)

// SQLiteWebhookDeliveryRepository implements WebhookDeliveryRepository for SQLite.
type SQLiteWebhookDeliveryRepository struct {
	db *sql.DB
}

// NewSQLiteWebhookDeliveryRepository creates a new SQLite webhook delivery repository.
func NewSQLiteWebhookDeliveryRepository(db *sql.DB) *SQLiteWebhookDeliveryRepository {
	return &SQLiteWebhookDeliveryRepository{db: db}
}

const deliveryColumns = `id, webhook_id, event_type, payload_json, status, status_code,
	error_message, attempt_number, max_attempts, next_retry_at, created_at, delivered_at`

func (r *SQLiteWebhookDeliveryRepository) Create(ctx context.Context, delivery *models.WebhookDelivery) error {
	query := `INSERT INTO webhook_deliveries (` + deliveryColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		delivery.ID, delivery.WebhookID, string(delivery.EventType), delivery.PayloadJSON,
		string(delivery.Status), nullableInt(delivery.StatusCode), delivery.ErrorMessage,
		delivery.AttemptNumber, delivery.MaxAttempts,
		nullableTime(delivery.NextRetryAt), delivery.CreatedAt.Format(time.RFC3339),
		nullableTime(delivery.DeliveredAt))
	return err
}

func (r *SQLiteWebhookDeliveryRepository) Update(ctx context.Context, delivery *models.WebhookDelivery) error {
	query := `UPDATE webhook_deliveries SET status = ?, status_code = ?, error_message = ?,
		attempt_number = ?, next_retry_at = ?, delivered_at = ?
		WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query,
		string(delivery.Status), nullableInt(delivery.StatusCode), delivery.ErrorMessage,
		delivery.AttemptNumber, nullableTime(delivery.NextRetryAt),
		nullableTime(delivery.DeliveredAt), delivery.ID)
	return err
}

func (r *SQLiteWebhookDeliveryRepository) GetByID(ctx context.Context, id string) (*models.WebhookDelivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM webhook_deliveries WHERE id = ?`
	d, err := scanDelivery(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return d, err
}

func (r *SQLiteWebhookDeliveryRepository) GetByWebhookID(ctx context.Context, webhookID string, limit, offset int) ([]*models.WebhookDelivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM webhook_deliveries
		WHERE webhook_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, query, webhookID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var deliveries []*models.WebhookDelivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}

// ClaimPending atomically claims the next delivery that is due. The claim is
// an UPDATE ... RETURNING on a single row so concurrent notifier workers
// never pick up the same delivery.
func (r *SQLiteWebhookDeliveryRepository) ClaimPending(ctx context.Context, now time.Time) (*models.WebhookDelivery, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	nowStr := now.UTC().Format(time.RFC3339)
	query := `
		UPDATE webhook_deliveries
		SET status = 'retrying', attempt_number = attempt_number + 1, next_retry_at = NULL
		WHERE id = (
			SELECT id FROM webhook_deliveries
			WHERE (status = 'pending' OR (status = 'retrying' AND next_retry_at IS NOT NULL AND next_retry_at <= ?))
			ORDER BY created_at ASC
			LIMIT 1
		)
		RETURNING ` + deliveryColumns

	d, err := scanDelivery(tx.QueryRowContext(ctx, query, nowStr))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim delivery: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return d, nil
}

func scanDelivery(row rowScanner) (*models.WebhookDelivery, error) {
	var d models.WebhookDelivery
	var eventType, status, createdAt string
	var statusCode sql.NullInt64
	var nextRetryAt, deliveredAt sql.NullString
	err := row.Scan(&d.ID, &d.WebhookID, &eventType, &d.PayloadJSON, &status,
		&statusCode, &d.ErrorMessage, &d.AttemptNumber, &d.MaxAttempts,
		&nextRetryAt, &createdAt, &deliveredAt)
	if err != nil {
		return nil, err
	}
	d.EventType = models.EventType(eventType)
	d.Status = models.WebhookDeliveryStatus(status)
	if statusCode.Valid {
		code := int(statusCode.Int64)
		d.StatusCode = &code
	}
	if nextRetryAt.Valid {
		t, _ := time.Parse(time.RFC3339, nextRetryAt.String)
		d.NextRetryAt = &t
	}
	if deliveredAt.Valid {
		t, _ := time.Parse(time.RFC3339, deliveredAt.String)
		d.DeliveredAt = &t
	}
	d.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &d, nil
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}
