// internal/repository/postgres/distributor_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lubripro-service/internal/domain/distributor"
	xerrors "lubripro-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type DistributorRepository struct {
	db *pgxpool.Pool
}

func NewDistributorRepository(db *pgxpool.Pool) *DistributorRepository {
	return &DistributorRepository{db: db}
}

const distributorColumns = `
	id, name,
	credits_purchased, credits_used, credits_available,
	total_coupons_generated, total_coupons_used, total_coupons_expired, active_accounts,
	last_purchase, created_at, updated_at
`

func (r *DistributorRepository) Create(ctx context.Context, d *distributor.Distributor) error {
	query := `
		INSERT INTO distributors (name)
		VALUES ($1)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query, d.Name).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create distributor: %w", err)
	}

	return nil
}

func (r *DistributorRepository) FindByID(ctx context.Context, id int64) (*distributor.Distributor, error) {
	query := fmt.Sprintf(`SELECT %s FROM distributors WHERE id = $1`, distributorColumns)
	return findDistributor(r.db.QueryRow(ctx, query, id))
}

// FindByIDTx reads a distributor inside a transaction with a row lock.
func (r *DistributorRepository) FindByIDTx(ctx context.Context, tx pgx.Tx, id int64) (*distributor.Distributor, error) {
	query := fmt.Sprintf(`SELECT %s FROM distributors WHERE id = $1 FOR UPDATE`, distributorColumns)
	return findDistributor(tx.QueryRow(ctx, query, id))
}

// ConsumeCreditTx atomically spends one credit and counts the generated
// coupon. The availability guard is re-checked here, at commit time, so a
// stale read outside the transaction can never overdraw the balance.
func (r *DistributorRepository) ConsumeCreditTx(ctx context.Context, tx pgx.Tx, id int64) error {
	query := `
		UPDATE distributors SET
			credits_available = credits_available - 1,
			credits_used = credits_used + 1,
			total_coupons_generated = total_coupons_generated + 1,
			updated_at = NOW()
		WHERE id = $1 AND credits_available >= 1
	`

	tag, err := tx.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to consume credit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrInsufficientCredits
	}

	return nil
}

// CountGeneratedTx bumps only the generated-coupon stat; used for
// administrator-issued coupons, which cost no credit.
func (r *DistributorRepository) CountGeneratedTx(ctx context.Context, tx pgx.Tx, id int64) error {
	query := `
		UPDATE distributors SET
			total_coupons_generated = total_coupons_generated + 1,
			updated_at = NOW()
		WHERE id = $1
	`

	tag, err := tx.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to count generated coupon: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrDistributorNotFound
	}

	return nil
}

// CountRedemptionTx records a successful redemption against the
// distributor's stats.
func (r *DistributorRepository) CountRedemptionTx(ctx context.Context, tx pgx.Tx, id int64) error {
	query := `
		UPDATE distributors SET
			total_coupons_used = total_coupons_used + 1,
			active_accounts = active_accounts + 1,
			updated_at = NOW()
		WHERE id = $1
	`

	tag, err := tx.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to count redemption: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrDistributorNotFound
	}

	return nil
}

// AddCreditsTx tops up the balance and stamps the purchase.
func (r *DistributorRepository) AddCreditsTx(ctx context.Context, tx pgx.Tx, id int64, quantity int, at time.Time) error {
	query := `
		UPDATE distributors SET
			credits_purchased = credits_purchased + $2,
			credits_available = credits_available + $2,
			last_purchase = $3,
			updated_at = NOW()
		WHERE id = $1
	`

	tag, err := tx.Exec(ctx, query, id, quantity, at)
	if err != nil {
		return fmt.Errorf("failed to add credits: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrDistributorNotFound
	}

	return nil
}

// CreatePurchaseTx appends a credit purchase history entry.
func (r *DistributorRepository) CreatePurchaseTx(ctx context.Context, tx pgx.Tx, p *distributor.CreditPurchase) error {
	query := `
		INSERT INTO distributor_credit_purchases (distributor_id, quantity, unit_price, total_price, method, reference)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`

	err := tx.QueryRow(
		ctx, query,
		p.DistributorID, p.Quantity, p.UnitPrice, p.TotalPrice, p.Method, p.Reference,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create credit purchase: %w", err)
	}

	return nil
}

// UpdateStats overwrites the derived stat counters; only the recompute path
// may call this.
func (r *DistributorRepository) UpdateStats(ctx context.Context, id int64, stats distributor.Stats) error {
	query := `
		UPDATE distributors SET
			total_coupons_generated = $2,
			total_coupons_used = $3,
			total_coupons_expired = $4,
			active_accounts = $5,
			updated_at = NOW()
		WHERE id = $1
	`

	tag, err := r.db.Exec(
		ctx, query, id,
		stats.TotalCouponsGenerated, stats.TotalCouponsUsed, stats.TotalCouponsExpired, stats.ActiveAccounts,
	)
	if err != nil {
		return fmt.Errorf("failed to update distributor stats: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrDistributorNotFound
	}

	return nil
}

func findDistributor(row pgx.Row) (*distributor.Distributor, error) {
	var d distributor.Distributor

	err := row.Scan(
		&d.ID, &d.Name,
		&d.Credits.Purchased, &d.Credits.Used, &d.Credits.Available,
		&d.Stats.TotalCouponsGenerated, &d.Stats.TotalCouponsUsed, &d.Stats.TotalCouponsExpired, &d.Stats.ActiveAccounts,
		&d.LastPurchase, &d.CreatedAt, &d.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrDistributorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find distributor: %w", err)
	}

	return &d, nil
}
