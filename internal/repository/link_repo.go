package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/betlinkr/betlinkr-api/internal/models"
)

// SQLiteLinkRepository implements LinkRepository for SQLite.
type SQLiteLinkRepository struct {
	db *sql.DB
}

// NewSQLiteLinkRepository creates a new SQLite link repository.
func NewSQLiteLinkRepository(db *sql.DB) *SQLiteLinkRepository {
	return &SQLiteLinkRepository{db: db}
}

const linkColumns = `id, affiliate_id, offer_id, code, destination_url, is_active,
	clicks, conversions, total_commission, created_at, updated_at`

func (r *SQLiteLinkRepository) Create(ctx context.Context, link *models.AffiliateLink) error {
	query := `INSERT INTO affiliate_links (` + linkColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		link.ID, link.AffiliateID, link.OfferID, link.Code, link.DestinationURL,
		boolToInt(link.IsActive), link.Clicks, link.Conversions, link.TotalCommission,
		link.CreatedAt.Format(time.RFC3339), link.UpdatedAt.Format(time.RFC3339))
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (r *SQLiteLinkRepository) GetByID(ctx context.Context, id string) (*models.AffiliateLink, error) {
	query := `SELECT ` + linkColumns + ` FROM affiliate_links WHERE id = ?`
	return nilOnNoRows(scanLinkRow(r.db.QueryRowContext(ctx, query, id)))
}

func (r *SQLiteLinkRepository) GetByCode(ctx context.Context, code string) (*models.AffiliateLink, error) {
	query := `SELECT ` + linkColumns + ` FROM affiliate_links WHERE code = ?`
	return nilOnNoRows(scanLinkRow(r.db.QueryRowContext(ctx, query, code)))
}

func (r *SQLiteLinkRepository) GetByAffiliateID(ctx context.Context, affiliateID string) ([]*models.AffiliateLink, error) {
	query := `SELECT ` + linkColumns + ` FROM affiliate_links WHERE affiliate_id = ? ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, affiliateID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var links []*models.AffiliateLink
	for rows.Next() {
		link, err := scanLinkRow(rows)
		if err != nil {
			return nil, err
		}
		links = append(links, link)
	}
	return links, rows.Err()
}

// Update writes the mutable link fields. Aggregates are never written here;
// they move only through the transactional paths in click and conversion
// repositories.
func (r *SQLiteLinkRepository) Update(ctx context.Context, link *models.AffiliateLink) error {
	query := `UPDATE affiliate_links SET destination_url = ?, is_active = ?, updated_at = ?
		WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query,
		link.DestinationURL, boolToInt(link.IsActive),
		time.Now().UTC().Format(time.RFC3339), link.ID)
	return err
}

func (r *SQLiteLinkRepository) SetActive(ctx context.Context, id string, active bool) error {
	query := `UPDATE affiliate_links SET is_active = ?, updated_at = ? WHERE id = ?`
	result, err := r.db.ExecContext(ctx, query, boolToInt(active), time.Now().UTC().Format(time.RFC3339), id)
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

func (r *SQLiteLinkRepository) GetStats(ctx context.Context, id string) (*models.LinkStats, error) {
	query := `SELECT
		l.id, l.clicks, l.conversions, l.total_commission,
		(SELECT COUNT(*) FROM registrations WHERE link_id = l.id),
		(SELECT COUNT(*) FROM deposits WHERE link_id = l.id),
		(SELECT COALESCE(SUM(amount), 0) FROM deposits WHERE link_id = l.id)
		FROM affiliate_links l WHERE l.id = ?`
	var stats models.LinkStats
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&stats.LinkID, &stats.Clicks, &stats.Conversions, &stats.TotalCommission,
		&stats.Registrations, &stats.Deposits, &stats.DepositVolume)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

func scanLinkRow(row rowScanner) (*models.AffiliateLink, error) {
	var link models.AffiliateLink
	var isActive int
	var createdAt, updatedAt string
	err := row.Scan(&link.ID, &link.AffiliateID, &link.OfferID, &link.Code,
		&link.DestinationURL, &isActive, &link.Clicks, &link.Conversions,
		&link.TotalCommission, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	link.IsActive = isActive != 0
	link.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	link.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &link, nil
}

func nilOnNoRows(link *models.AffiliateLink, err error) (*models.AffiliateLink, error) {
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return link, err
}
