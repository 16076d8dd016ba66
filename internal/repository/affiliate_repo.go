package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/betlinkr/betlinkr-api/internal/models"
)

// SQLiteAffiliateRepository implements AffiliateRepository for SQLite.
type SQLiteAffiliateRepository struct {
	db *sql.DB
}

// NewSQLiteAffiliateRepository creates a new SQLite affiliate repository.
func NewSQLiteAffiliateRepository(db *sql.DB) *SQLiteAffiliateRepository {
	return &SQLiteAffiliateRepository{db: db}
}

func (r *SQLiteAffiliateRepository) Create(ctx context.Context, affiliate *models.Affiliate) error {
	query := `INSERT INTO affiliates (id, email, name, available_balance, total_earnings, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		affiliate.ID, affiliate.Email, affiliate.Name,
		affiliate.AvailableBalance, affiliate.TotalEarnings,
		affiliate.CreatedAt.Format(time.RFC3339), affiliate.UpdatedAt.Format(time.RFC3339))
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (r *SQLiteAffiliateRepository) GetByID(ctx context.Context, id string) (*models.Affiliate, error) {
	query := `SELECT id, email, name, available_balance, total_earnings, created_at, updated_at
		FROM affiliates WHERE id = ?`
	var a models.Affiliate
	var createdAt, updatedAt string
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&a.ID, &a.Email, &a.Name, &a.AvailableBalance, &a.TotalEarnings, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	a.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &a, nil
}

func (r *SQLiteAffiliateRepository) GetSummary(ctx context.Context, id string) (*models.AffiliateSummary, error) {
	query := `SELECT a.id, a.available_balance,
		(SELECT COUNT(*) FROM affiliate_links WHERE affiliate_id = a.id),
		(SELECT COALESCE(SUM(clicks), 0) FROM affiliate_links WHERE affiliate_id = a.id),
		(SELECT COALESCE(SUM(conversions), 0) FROM affiliate_links WHERE affiliate_id = a.id),
		(SELECT COALESCE(SUM(total_commission), 0) FROM affiliate_links WHERE affiliate_id = a.id)
		FROM affiliates a WHERE a.id = ?`
	var s models.AffiliateSummary
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&s.AffiliateID, &s.AvailableBalance, &s.Links, &s.Clicks, &s.Conversions, &s.TotalCommission)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}
