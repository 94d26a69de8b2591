// internal/repository/postgres/coupon_repo.go
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"lubripro-service/internal/domain/coupon"
	xerrors "lubripro-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type CouponRepository struct {
	db *pgxpool.Pool
}

func NewCouponRepository(db *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{db: db}
}

const couponColumns = `
	id, code, distributor_id, status, valid_from, valid_until,
	benefits, used_by, created_by, created_at, updated_at
`

// CreateTx inserts a coupon within a transaction, alongside the credit
// decrement that funds it.
func (r *CouponRepository) CreateTx(ctx context.Context, tx pgx.Tx, c *coupon.Coupon) error {
	query := `
		INSERT INTO coupons (code, distributor_id, status, valid_from, valid_until, benefits, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`

	benefitsJSON, err := json.Marshal(c.Benefits)
	if err != nil {
		return fmt.Errorf("failed to marshal benefits: %w", err)
	}

	err = tx.QueryRow(
		ctx, query,
		c.Code, c.DistributorID, c.Status, c.ValidFrom, c.ValidUntil, benefitsJSON, c.CreatedBy,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create coupon: %w", err)
	}

	return nil
}

// CodeExists reports whether a code is already taken; used for collision
// retry during generation.
func (r *CouponRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM coupons WHERE code = $1)`, code).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check coupon code: %w", err)
	}
	return exists, nil
}

func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	query := fmt.Sprintf(`SELECT %s FROM coupons WHERE code = $1`, couponColumns)
	return findCoupon(r.db.QueryRow(ctx, query, code))
}

// FindByCodeTx re-reads the coupon inside a transaction with a row lock.
// Redemption must use this, never a read from a prior validation call.
func (r *CouponRepository) FindByCodeTx(ctx context.Context, tx pgx.Tx, code string) (*coupon.Coupon, error) {
	query := fmt.Sprintf(`SELECT %s FROM coupons WHERE code = $1 FOR UPDATE`, couponColumns)
	return findCoupon(tx.QueryRow(ctx, query, code))
}

// MarkUsedTx flips an active coupon to used and attaches the redemption
// record. Returns ErrCouponAlreadyUsed when the coupon was no longer active,
// which is what makes concurrent redemptions of one code lose.
func (r *CouponRepository) MarkUsedTx(ctx context.Context, tx pgx.Tx, id int64, usedBy *coupon.UsedBy) error {
	query := `
		UPDATE coupons SET status = $1, used_by = $2, updated_at = $3
		WHERE id = $4 AND status = $5
	`

	usedByJSON, err := json.Marshal(usedBy)
	if err != nil {
		return fmt.Errorf("failed to marshal used_by: %w", err)
	}

	tag, err := tx.Exec(ctx, query, coupon.StatusUsed, usedByJSON, time.Now(), id, coupon.StatusActive)
	if err != nil {
		return fmt.Errorf("failed to mark coupon used: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrCouponAlreadyUsed
	}

	return nil
}

// MarkExpiredIfActive performs the lazy expiry write. Idempotent: the guard
// makes repeated or concurrent calls a no-op, and a coupon never goes back
// to active.
func (r *CouponRepository) MarkExpiredIfActive(ctx context.Context, code string) error {
	query := `
		UPDATE coupons SET status = $1, updated_at = $2
		WHERE code = $3 AND status = $4
	`

	if _, err := r.db.Exec(ctx, query, coupon.StatusExpired, time.Now(), code, coupon.StatusActive); err != nil {
		return fmt.Errorf("failed to expire coupon: %w", err)
	}

	return nil
}

// ExpireOverdue sweeps every active coupon past its validity window.
func (r *CouponRepository) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE coupons SET status = $1, updated_at = $2
		WHERE status = $3 AND valid_until < $2
	`

	tag, err := r.db.Exec(ctx, query, coupon.StatusExpired, now, coupon.StatusActive)
	if err != nil {
		return 0, fmt.Errorf("failed to expire overdue coupons: %w", err)
	}

	return tag.RowsAffected(), nil
}

// List retrieves coupons with filters.
func (r *CouponRepository) List(ctx context.Context, filters *coupon.CouponListFilters) ([]coupon.Coupon, int64, error) {
	conditions := []string{"TRUE"}
	args := []interface{}{}
	argPos := 1

	if filters.DistributorID != nil {
		conditions = append(conditions, fmt.Sprintf("distributor_id = $%d", argPos))
		args = append(args, *filters.DistributorID)
		argPos++
	}

	if filters.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
		args = append(args, *filters.Status)
		argPos++
	}

	whereClause := strings.Join(conditions, " AND ")

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM coupons WHERE %s", whereClause)
	var total int64
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count coupons: %w", err)
	}

	if filters.Page < 1 {
		filters.Page = 1
	}
	if filters.PageSize < 1 {
		filters.PageSize = 20
	}

	query := fmt.Sprintf(`
		SELECT %s FROM coupons
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, couponColumns, whereClause, argPos, argPos+1)
	args = append(args, filters.PageSize, (filters.Page-1)*filters.PageSize)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list coupons: %w", err)
	}
	defer rows.Close()

	var coupons []coupon.Coupon
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan coupon: %w", err)
		}
		coupons = append(coupons, *c)
	}

	return coupons, total, rows.Err()
}

// CountByStatus returns per-status coupon counts for a distributor; the
// source of truth behind stat recomputation.
func (r *CouponRepository) CountByStatus(ctx context.Context, distributorID int64) (map[coupon.Status]int, error) {
	query := `
		SELECT status, COUNT(*) FROM coupons
		WHERE distributor_id = $1
		GROUP BY status
	`

	rows, err := r.db.Query(ctx, query, distributorID)
	if err != nil {
		return nil, fmt.Errorf("failed to count coupons by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[coupon.Status]int)
	for rows.Next() {
		var status coupon.Status
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan coupon counts: %w", err)
		}
		counts[status] = n
	}

	return counts, rows.Err()
}

// Delete removes a coupon permanently; administrative use only.
func (r *CouponRepository) Delete(ctx context.Context, code string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM coupons WHERE code = $1`, code)
	if err != nil {
		return fmt.Errorf("failed to delete coupon: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrCouponNotFound
	}

	return nil
}

func findCoupon(row pgx.Row) (*coupon.Coupon, error) {
	c, err := scanCoupon(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrCouponNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find coupon: %w", err)
	}
	return c, nil
}

func scanCoupon(row pgx.Row) (*coupon.Coupon, error) {
	var c coupon.Coupon
	var benefitsJSON, usedByJSON []byte

	err := row.Scan(
		&c.ID, &c.Code, &c.DistributorID, &c.Status, &c.ValidFrom, &c.ValidUntil,
		&benefitsJSON, &usedByJSON, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(benefitsJSON) > 0 {
		_ = json.Unmarshal(benefitsJSON, &c.Benefits)
	}
	if len(usedByJSON) > 0 {
		c.UsedBy = &coupon.UsedBy{}
		_ = json.Unmarshal(usedByJSON, c.UsedBy)
	}

	return &c, nil
}
