package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/betlinkr/betlinkr-api/internal/models"
)

// SQLiteOfferRepository implements OfferRepository for SQLite.
type SQLiteOfferRepository struct {
	db *sql.DB
}

// NewSQLiteOfferRepository creates a new SQLite offer repository.
func NewSQLiteOfferRepository(db *sql.DB) *SQLiteOfferRepository {
	return &SQLiteOfferRepository{db: db}
}

const offerColumns = `id, name, website_url, commission_model, cpa_amount, revshare_percent,
	cookie_duration_days, postback_token, is_active, created_at, updated_at`

func (r *SQLiteOfferRepository) Create(ctx context.Context, offer *models.Offer) error {
	query := `INSERT INTO offers (` + offerColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		offer.ID, offer.Name, offer.WebsiteURL, string(offer.CommissionModel),
		offer.CPAAmount, offer.RevSharePercent, offer.CookieDurationDays,
		offer.PostbackToken, boolToInt(offer.IsActive),
		offer.CreatedAt.Format(time.RFC3339), offer.UpdatedAt.Format(time.RFC3339))
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (r *SQLiteOfferRepository) GetByID(ctx context.Context, id string) (*models.Offer, error) {
	query := `SELECT ` + offerColumns + ` FROM offers WHERE id = ?`
	return r.scanOffer(r.db.QueryRowContext(ctx, query, id))
}

func (r *SQLiteOfferRepository) GetByToken(ctx context.Context, token string) (*models.Offer, error) {
	query := `SELECT ` + offerColumns + ` FROM offers WHERE postback_token = ?`
	return r.scanOffer(r.db.QueryRowContext(ctx, query, token))
}

func (r *SQLiteOfferRepository) List(ctx context.Context, limit, offset int) ([]*models.Offer, error) {
	query := `SELECT ` + offerColumns + ` FROM offers ORDER BY created_at DESC LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var offers []*models.Offer
	for rows.Next() {
		offer, err := scanOfferRow(rows)
		if err != nil {
			return nil, err
		}
		offers = append(offers, offer)
	}
	return offers, rows.Err()
}

func (r *SQLiteOfferRepository) Update(ctx context.Context, offer *models.Offer) error {
	query := `UPDATE offers SET name = ?, website_url = ?, commission_model = ?,
		cpa_amount = ?, revshare_percent = ?, cookie_duration_days = ?,
		is_active = ?, updated_at = ?
		WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query,
		offer.Name, offer.WebsiteURL, string(offer.CommissionModel),
		offer.CPAAmount, offer.RevSharePercent, offer.CookieDurationDays,
		boolToInt(offer.IsActive), time.Now().UTC().Format(time.RFC3339), offer.ID)
	return err
}

func (r *SQLiteOfferRepository) RotateToken(ctx context.Context, id, newToken string) error {
	query := `UPDATE offers SET postback_token = ?, updated_at = ? WHERE id = ?`
	result, err := r.db.ExecContext(ctx, query, newToken, time.Now().UTC().Format(time.RFC3339), id)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *SQLiteOfferRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM offers WHERE id = ?`, id)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *SQLiteOfferRepository) scanOffer(row rowScanner) (*models.Offer, error) {
	offer, err := scanOfferRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return offer, err
}

func scanOfferRow(row rowScanner) (*models.Offer, error) {
	var offer models.Offer
	var model string
	var isActive int
	var createdAt, updatedAt string
	err := row.Scan(&offer.ID, &offer.Name, &offer.WebsiteURL, &model,
		&offer.CPAAmount, &offer.RevSharePercent, &offer.CookieDurationDays,
		&offer.PostbackToken, &isActive, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	offer.CommissionModel = models.CommissionModel(model)
	offer.IsActive = isActive != 0
	offer.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	offer.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &offer, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
