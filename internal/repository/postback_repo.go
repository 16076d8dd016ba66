package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/betlinkr/betlinkr-api/internal/models"
)

// SQLitePostbackEventRepository implements PostbackEventRepository for SQLite.
type SQLitePostbackEventRepository struct {
	db *sql.DB
}

// NewSQLitePostbackEventRepository creates a new SQLite postback event repository.
func NewSQLitePostbackEventRepository(db *sql.DB) *SQLitePostbackEventRepository {
	return &SQLitePostbackEventRepository{db: db}
}

func (r *SQLitePostbackEventRepository) Create(ctx context.Context, event *models.PostbackEvent) error {
	query := `INSERT INTO postback_events (id, offer_id, event_type, link_code, customer_id,
		amount, currency, idempotency_key, status, error_message, raw_query, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		event.ID, event.OfferID, string(event.EventType), event.LinkCode, event.CustomerID,
		event.Amount, event.Currency, event.IdempotencyKey, string(event.Status),
		event.ErrorMessage, event.RawQuery, event.CreatedAt.Format(time.RFC3339))
	return err
}

func (r *SQLitePostbackEventRepository) ListByOffer(ctx context.Context, offerID string, limit, offset int) ([]*models.PostbackEvent, error) {
	query := `SELECT id, offer_id, event_type, link_code, customer_id, amount, currency,
		idempotency_key, status, error_message, raw_query, created_at
		FROM postback_events WHERE offer_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, query, offerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var events []*models.PostbackEvent
	for rows.Next() {
		var e models.PostbackEvent
		var eventType, status, createdAt string
		if err := rows.Scan(&e.ID, &e.OfferID, &eventType, &e.LinkCode, &e.CustomerID,
			&e.Amount, &e.Currency, &e.IdempotencyKey, &status, &e.ErrorMessage,
			&e.RawQuery, &createdAt); err != nil {
			return nil, err
		}
		e.EventType = models.EventType(eventType)
		e.Status = models.PostbackStatus(status)
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		events = append(events, &e)
	}
	return events, rows.Err()
}

func (r *SQLitePostbackEventRepository) CountByStatus(ctx context.Context, offerID string, status models.PostbackStatus) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM postback_events WHERE offer_id = ? AND status = ?`,
		offerID, string(status)).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return count, err
}
