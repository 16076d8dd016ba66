package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/betlinkr/betlinkr-api/internal/models"
)

// SQLiteConversionRepository implements ConversionRepository for SQLite.
//
// This is the exactly-once boundary: every create runs the conversion insert
// and the ledger increments in one transaction, and relies on the UNIQUE
// constraints on idempotency_key and (offer_id, customer_id) to collapse
// replayed postbacks. Two concurrent replays cannot both commit; the loser's
// insert fails on the constraint and the whole transaction rolls back,
// leaving the ledger untouched.
type SQLiteConversionRepository struct {
	db *sql.DB
}

// NewSQLiteConversionRepository creates a new SQLite conversion repository.
func NewSQLiteConversionRepository(db *sql.DB) *SQLiteConversionRepository {
	return &SQLiteConversionRepository{db: db}
}

func (r *SQLiteConversionRepository) CreateRegistration(ctx context.Context, reg *models.Registration) error {
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

	insert := `INSERT INTO registrations (id, affiliate_id, offer_id, link_id, customer_id, email,
		deposited, cpa_commission, idempotency_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, insert,
		reg.ID, reg.AffiliateID, reg.OfferID, reg.LinkID, reg.CustomerID, reg.Email,
		reg.CPACommission, reg.IdempotencyKey, reg.CreatedAt.Format(time.RFC3339)); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert registration: %w", err)
	}

	if err := creditLedger(ctx, tx, reg.LinkID, reg.AffiliateID, reg.CPACommission); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}

func (r *SQLiteConversionRepository) GetRegistrationByCustomer(ctx context.Context, offerID, customerID string) (*models.Registration, error) {
	query := registrationSelect + ` WHERE offer_id = ? AND customer_id = ?`
	return scanRegistrationOrNil(r.db.QueryRowContext(ctx, query, offerID, customerID))
}

func (r *SQLiteConversionRepository) GetRegistrationByKey(ctx context.Context, idempotencyKey string) (*models.Registration, error) {
	query := registrationSelect + ` WHERE idempotency_key = ?`
	return scanRegistrationOrNil(r.db.QueryRowContext(ctx, query, idempotencyKey))
}

func (r *SQLiteConversionRepository) ListRegistrationsByLink(ctx context.Context, linkID string, limit, offset int) ([]*models.Registration, error) {
	query := registrationSelect + ` WHERE link_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, query, linkID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var regs []*models.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		regs = append(regs, reg)
	}
	return regs, rows.Err()
}

func (r *SQLiteConversionRepository) CreateDeposit(ctx context.Context, dep *models.Deposit) error {
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

	insert := `INSERT INTO deposits (id, registration_id, affiliate_id, offer_id, link_id, customer_id,
		amount, currency, commission, status, external_ref, idempotency_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	var regID any
	if dep.RegistrationID != nil {
		regID = *dep.RegistrationID
	}
	if _, err := tx.ExecContext(ctx, insert,
		dep.ID, regID, dep.AffiliateID, dep.OfferID, dep.LinkID, dep.CustomerID,
		dep.Amount, dep.Currency, dep.Commission, string(dep.Status), dep.ExternalRef,
		dep.IdempotencyKey, dep.CreatedAt.Format(time.RFC3339)); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert deposit: %w", err)
	}

	if dep.RegistrationID != nil {
		if _, err := tx.ExecContext(ctx,
			`UPDATE registrations SET deposited = 1 WHERE id = ?`, *dep.RegistrationID); err != nil {
			return fmt.Errorf("failed to mark registration deposited: %w", err)
		}
	}

	if err := creditLedger(ctx, tx, dep.LinkID, dep.AffiliateID, dep.Commission); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}

func (r *SQLiteConversionRepository) GetDepositByKey(ctx context.Context, idempotencyKey string) (*models.Deposit, error) {
	query := depositSelect + ` WHERE idempotency_key = ?`
	return scanDepositOrNil(r.db.QueryRowContext(ctx, query, idempotencyKey))
}

func (r *SQLiteConversionRepository) ListDepositsByLink(ctx context.Context, linkID string, limit, offset int) ([]*models.Deposit, error) {
	query := depositSelect + ` WHERE link_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, query, linkID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var deps []*models.Deposit
	for rows.Next() {
		dep, err := scanDeposit(rows)
		if err != nil {
			return nil, err
		}
		deps = append(deps, dep)
	}
	return deps, rows.Err()
}

func (r *SQLiteConversionRepository) SumCommissionByLink(ctx context.Context, linkID string) (float64, error) {
	query := `SELECT
		(SELECT COALESCE(SUM(cpa_commission), 0) FROM registrations WHERE link_id = ?) +
		(SELECT COALESCE(SUM(commission), 0) FROM deposits WHERE link_id = ?)`
	var sum float64
	err := r.db.QueryRowContext(ctx, query, linkID, linkID).Scan(&sum)
	return sum, err
}

// creditLedger applies a confirmed commission to the link aggregates and the
// affiliate's balance using in-place increments. Runs inside the caller's
// transaction so the conversion row and the ledger move together.
func creditLedger(ctx context.Context, tx *sql.Tx, linkID, affiliateID string, commission float64) error {
	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.ExecContext(ctx,
		`UPDATE affiliate_links SET conversions = conversions + 1,
			total_commission = total_commission + ?, updated_at = ?
		WHERE id = ?`, commission, now, linkID); err != nil {
		return fmt.Errorf("failed to update link aggregates: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE affiliates SET available_balance = available_balance + ?,
			total_earnings = total_earnings + ?, updated_at = ?
		WHERE id = ?`, commission, commission, now, affiliateID); err != nil {
		return fmt.Errorf("failed to update affiliate balance: %w", err)
	}
	return nil
}

const registrationSelect = `SELECT id, affiliate_id, offer_id, link_id, customer_id, email,
	deposited, cpa_commission, idempotency_key, created_at FROM registrations`

func scanRegistration(row rowScanner) (*models.Registration, error) {
	var reg models.Registration
	var deposited int
	var createdAt string
	err := row.Scan(&reg.ID, &reg.AffiliateID, &reg.OfferID, &reg.LinkID,
		&reg.CustomerID, &reg.Email, &deposited, &reg.CPACommission,
		&reg.IdempotencyKey, &createdAt)
	if err != nil {
		return nil, err
	}
	reg.Deposited = deposited != 0
	reg.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &reg, nil
}

func scanRegistrationOrNil(row rowScanner) (*models.Registration, error) {
	reg, err := scanRegistration(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return reg, err
}

const depositSelect = `SELECT id, registration_id, affiliate_id, offer_id, link_id, customer_id,
	amount, currency, commission, status, external_ref, idempotency_key, created_at FROM deposits`

func scanDeposit(row rowScanner) (*models.Deposit, error) {
	var dep models.Deposit
	var regID sql.NullString
	var status, createdAt string
	err := row.Scan(&dep.ID, &regID, &dep.AffiliateID, &dep.OfferID, &dep.LinkID,
		&dep.CustomerID, &dep.Amount, &dep.Currency, &dep.Commission, &status,
		&dep.ExternalRef, &dep.IdempotencyKey, &createdAt)
	if err != nil {
		return nil, err
	}
	if regID.Valid {
		dep.RegistrationID = &regID.String
	}
	dep.Status = models.DepositStatus(status)
	dep.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &dep, nil
}

func scanDepositOrNil(row rowScanner) (*models.Deposit, error) {
	dep, err := scanDeposit(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return dep, err
}
