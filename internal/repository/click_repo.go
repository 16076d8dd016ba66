package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/betlinkr/betlinkr-api/internal/models"
)

// SQLiteClickRepository implements ClickRepository for SQLite.
type SQLiteClickRepository struct {
	db *sql.DB
}

// NewSQLiteClickRepository creates a new SQLite click repository.
func NewSQLiteClickRepository(db *sql.DB) *SQLiteClickRepository {
	return &SQLiteClickRepository{db: db}
}

// Create inserts the click row and bumps the link's click counter in one
// transaction. The counter update is an in-place increment so concurrent
// clicks on the same link serialize at the storage layer.
func (r *SQLiteClickRepository) Create(ctx context.Context, click *models.Click) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	insert := `INSERT INTO clicks (id, affiliate_id, link_id, client_ip, user_agent, referrer, converted, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?)`
	if _, err := tx.ExecContext(ctx, insert,
		click.ID, click.AffiliateID, click.LinkID, click.ClientIP,
		click.UserAgent, click.Referrer, click.CreatedAt.Format(time.RFC3339)); err != nil {
		return fmt.Errorf("failed to insert click: %w", err)
	}

	bump := `UPDATE affiliate_links SET clicks = clicks + 1, updated_at = ? WHERE id = ?`
	if _, err := tx.ExecContext(ctx, bump, time.Now().UTC().Format(time.RFC3339), click.LinkID); err != nil {
		return fmt.Errorf("failed to increment link clicks: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}

func (r *SQLiteClickRepository) GetByID(ctx context.Context, id string) (*models.Click, error) {
	query := `SELECT id, affiliate_id, link_id, client_ip, user_agent, referrer, converted, created_at
		FROM clicks WHERE id = ?`
	var click models.Click
	var converted int
	var createdAt string
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&click.ID, &click.AffiliateID, &click.LinkID, &click.ClientIP,
		&click.UserAgent, &click.Referrer, &converted, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	click.Converted = converted != 0
	click.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &click, nil
}

// MarkConverted flips converted from 0 to 1. The WHERE converted = 0 guard
// makes the flip happen at most once no matter how many callers race.
func (r *SQLiteClickRepository) MarkConverted(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE clicks SET converted = 1 WHERE id = ? AND converted = 0`, id)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *SQLiteClickRepository) CountByLinkID(ctx context.Context, linkID string) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM clicks WHERE link_id = ?`, linkID).Scan(&count)
	return count, err
}
