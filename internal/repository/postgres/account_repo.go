// internal/repository/postgres/account_repo.go
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"lubripro-service/internal/domain/account"
	"lubripro-service/internal/domain/plan"
	xerrors "lubripro-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx, letting repository
// helpers run inside or outside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type AccountRepository struct {
	db *pgxpool.Pool
}

func NewAccountRepository(db *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{db: db}
}

const accountColumns = `
	id, name, status, plan_code, plan_kind, trial_end_date,
	billing_cycle_end_date, next_payment_date, subscription_end_date,
	renewal_period, auto_renewal, payment_status,
	total_services_contracted, services_remaining, bundle_expiry_date,
	services_used_month, services_used_total, active_user_count,
	usage_history, sponsorship,
	last_payment_date, last_renewal_date, renewal_count,
	created_at, updated_at
`

// Create inserts a fresh trial account.
func (r *AccountRepository) Create(ctx context.Context, a *account.Account) error {
	query := `
		INSERT INTO accounts (name, status, trial_end_date, payment_status, usage_history)
		VALUES ($1, $2, $3, $4, '{}'::jsonb)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query, a.Name, a.Status, a.TrialEndDate, a.PaymentStatus).
		Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}

	return nil
}

// FindByID retrieves an account by ID.
func (r *AccountRepository) FindByID(ctx context.Context, id int64) (*account.Account, error) {
	query := fmt.Sprintf(`SELECT %s FROM accounts WHERE id = $1`, accountColumns)
	return scanAccount(r.db.QueryRow(ctx, query, id))
}

// FindByIDTx retrieves an account inside a transaction, locking the row so
// concurrent writers serialize on it.
func (r *AccountRepository) FindByIDTx(ctx context.Context, tx pgx.Tx, id int64) (*account.Account, error) {
	query := fmt.Sprintf(`SELECT %s FROM accounts WHERE id = $1 FOR UPDATE`, accountColumns)
	return scanAccount(tx.QueryRow(ctx, query, id))
}

// UpdateTx persists the full entitlement state of the account. Full-row
// writes only ever run inside a transaction whose FindByIDTx locked the
// row, so they cannot overwrite a concurrent metering increment.
func (r *AccountRepository) UpdateTx(ctx context.Context, tx pgx.Tx, a *account.Account) error {
	return updateAccount(ctx, tx, a)
}

func updateAccount(ctx context.Context, q DBTX, a *account.Account) error {
	query := `
		UPDATE accounts SET
			name = $1, status = $2, plan_code = $3, plan_kind = $4,
			trial_end_date = $5,
			billing_cycle_end_date = $6, next_payment_date = $7, subscription_end_date = $8,
			renewal_period = $9, auto_renewal = $10, payment_status = $11,
			total_services_contracted = $12, services_remaining = $13, bundle_expiry_date = $14,
			services_used_month = $15, services_used_total = $16, active_user_count = $17,
			usage_history = $18, sponsorship = $19,
			last_payment_date = $20, last_renewal_date = $21, renewal_count = $22,
			updated_at = $23
		WHERE id = $24
	`

	historyJSON, err := json.Marshal(a.UsageHistory)
	if err != nil {
		return fmt.Errorf("failed to marshal usage history: %w", err)
	}

	var sponsorshipJSON []byte
	if a.Sponsorship != nil {
		sponsorshipJSON, err = json.Marshal(a.Sponsorship)
		if err != nil {
			return fmt.Errorf("failed to marshal sponsorship: %w", err)
		}
	}

	planKind := nullString(string(a.PlanKind))
	renewalPeriod := nullString(string(a.RenewalPeriod))

	tag, err := q.Exec(
		ctx, query,
		a.Name, a.Status, a.PlanCode, planKind,
		a.TrialEndDate,
		a.BillingCycleEndDate, a.NextPaymentDate, a.SubscriptionEndDate,
		renewalPeriod, a.AutoRenewal, a.PaymentStatus,
		a.TotalServicesContracted, a.ServicesRemaining, a.BundleExpiryDate,
		a.ServicesUsedMonth, a.ServicesUsedTotal, a.ActiveUserCount,
		historyJSON, sponsorshipJSON,
		a.LastPaymentDate, a.LastRenewalDate, a.RenewalCount,
		time.Now(),
		a.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrAccountNotFound
	}

	return nil
}

// ConsumeTrial atomically records one consumed service for a trial account,
// guarded by the trial window and cap. Returns false when the guard denied
// the increment.
func (r *AccountRepository) ConsumeTrial(ctx context.Context, id int64, monthKey string, maxServices int) (bool, error) {
	query := `
		UPDATE accounts SET
			services_used_month = services_used_month + 1,
			services_used_total = services_used_total + 1,
			usage_history = jsonb_set(
				COALESCE(usage_history, '{}'::jsonb),
				ARRAY[$2],
				to_jsonb(COALESCE((usage_history->>$2)::int, 0) + 1)
			),
			updated_at = NOW()
		WHERE id = $1
		  AND status = 'trial'
		  AND trial_end_date > NOW()
		  AND services_used_month < $3
	`

	tag, err := r.db.Exec(ctx, query, id, monthKey, maxServices)
	if err != nil {
		return false, fmt.Errorf("failed to consume trial service: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// ConsumeRecurring atomically records one consumed service for an active
// recurring-plan account. A nil maxMonthly means the plan is unlimited.
func (r *AccountRepository) ConsumeRecurring(ctx context.Context, id int64, monthKey string, maxMonthly *int32) (bool, error) {
	query := `
		UPDATE accounts SET
			services_used_month = services_used_month + 1,
			services_used_total = services_used_total + 1,
			usage_history = jsonb_set(
				COALESCE(usage_history, '{}'::jsonb),
				ARRAY[$2],
				to_jsonb(COALESCE((usage_history->>$2)::int, 0) + 1)
			),
			updated_at = NOW()
		WHERE id = $1
		  AND status = 'active'
		  AND plan_kind = 'recurring'
		  AND ($3::int IS NULL OR services_used_month < $3)
	`

	tag, err := r.db.Exec(ctx, query, id, monthKey, maxMonthly)
	if err != nil {
		return false, fmt.Errorf("failed to consume recurring service: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// ConsumeBundle atomically records one consumed service for an active
// bundle-plan account, decrementing the remaining balance in the same
// statement so the contracted total is never overshot.
func (r *AccountRepository) ConsumeBundle(ctx context.Context, id int64, monthKey string) (bool, error) {
	query := `
		UPDATE accounts SET
			services_used_month = services_used_month + 1,
			services_used_total = services_used_total + 1,
			services_remaining = services_remaining - 1,
			usage_history = jsonb_set(
				COALESCE(usage_history, '{}'::jsonb),
				ARRAY[$2],
				to_jsonb(COALESCE((usage_history->>$2)::int, 0) + 1)
			),
			updated_at = NOW()
		WHERE id = $1
		  AND status = 'active'
		  AND plan_kind = 'bundle'
		  AND services_remaining > 0
		  AND bundle_expiry_date > NOW()
	`

	tag, err := r.db.Exec(ctx, query, id, monthKey)
	if err != nil {
		return false, fmt.Errorf("failed to consume bundle service: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// AddActiveUser atomically increments the active user count, guarded by the
// given cap.
func (r *AccountRepository) AddActiveUser(ctx context.Context, id int64, maxUsers int) (bool, error) {
	query := `
		UPDATE accounts SET active_user_count = active_user_count + 1, updated_at = NOW()
		WHERE id = $1 AND active_user_count < $2
	`

	tag, err := r.db.Exec(ctx, query, id, maxUsers)
	if err != nil {
		return false, fmt.Errorf("failed to add active user: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// RemoveActiveUser atomically decrements the active user count.
func (r *AccountRepository) RemoveActiveUser(ctx context.Context, id int64) error {
	query := `
		UPDATE accounts SET active_user_count = active_user_count - 1, updated_at = NOW()
		WHERE id = $1 AND active_user_count > 0
	`

	if _, err := r.db.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("failed to remove active user: %w", err)
	}

	return nil
}

// ResetMonthlyCounterTx zeroes the monthly service counter without touching
// the remaining bundle balance.
func (r *AccountRepository) ResetMonthlyCounterTx(ctx context.Context, tx pgx.Tx, id int64) error {
	query := `
		UPDATE accounts SET services_used_month = 0, updated_at = NOW()
		WHERE id = $1
	`

	tag, err := tx.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to reset monthly counter: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrAccountNotFound
	}

	return nil
}

// ExtendTrialTx pushes the trial end date forward by the given number of
// days. Only the trial window is written; usage counters belong to the
// metering statements and are never rewritten here.
func (r *AccountRepository) ExtendTrialTx(ctx context.Context, tx pgx.Tx, id int64, days int) (time.Time, error) {
	query := `
		UPDATE accounts SET
			trial_end_date = trial_end_date + make_interval(days => $2),
			updated_at = NOW()
		WHERE id = $1 AND status = 'trial'
		RETURNING trial_end_date
	`

	var newEnd time.Time
	err := tx.QueryRow(ctx, query, id, days).Scan(&newEnd)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, fmt.Errorf("%w: cannot extend trial", xerrors.ErrInvalidState)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to extend trial: %w", err)
	}

	return newEnd, nil
}

// DeactivateTx flips the account inactive, optionally flagging it overdue.
// Nothing else on the row is touched.
func (r *AccountRepository) DeactivateTx(ctx context.Context, tx pgx.Tx, id int64, overdue bool) error {
	query := `
		UPDATE accounts SET
			status = 'inactive',
			payment_status = CASE WHEN $2 THEN 'overdue' ELSE payment_status END,
			updated_at = NOW()
		WHERE id = $1
	`

	tag, err := tx.Exec(ctx, query, id, overdue)
	if err != nil {
		return fmt.Errorf("failed to deactivate account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrAccountNotFound
	}

	return nil
}

// StampPaymentTx marks the account paid as part of recording a payment.
func (r *AccountRepository) StampPaymentTx(ctx context.Context, tx pgx.Tx, id int64, paidAt time.Time) error {
	query := `
		UPDATE accounts SET last_payment_date = $2, payment_status = 'paid', updated_at = NOW()
		WHERE id = $1
	`

	tag, err := tx.Exec(ctx, query, id, paidAt)
	if err != nil {
		return fmt.Errorf("failed to stamp payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrAccountNotFound
	}

	return nil
}

// ListDue returns active accounts whose billing cycle elapsed at or before
// the given instant, oldest first.
func (r *AccountRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]account.Account, error) {
	if limit <= 0 {
		limit = 500
	}

	query := fmt.Sprintf(`
		SELECT %s FROM accounts
		WHERE status = 'active' AND billing_cycle_end_date IS NOT NULL AND billing_cycle_end_date <= $1
		ORDER BY billing_cycle_end_date ASC
		LIMIT $2
	`, accountColumns)

	rows, err := r.db.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list due accounts: %w", err)
	}
	defer rows.Close()

	var accounts []account.Account
	for rows.Next() {
		a, err := scanAccountRow(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}

	return accounts, rows.Err()
}

// CountByPlanCode reports how many accounts reference the given plan.
func (r *AccountRepository) CountByPlanCode(ctx context.Context, code string) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM accounts WHERE plan_code = $1`, code).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count accounts by plan: %w", err)
	}
	return count, nil
}

func scanAccount(row pgx.Row) (*account.Account, error) {
	a, err := scanAccountRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	return a, nil
}

func scanAccountRow(row pgx.Row) (*account.Account, error) {
	var a account.Account
	var planKind, renewalPeriod *string
	var historyJSON, sponsorshipJSON []byte

	err := row.Scan(
		&a.ID, &a.Name, &a.Status, &a.PlanCode, &planKind, &a.TrialEndDate,
		&a.BillingCycleEndDate, &a.NextPaymentDate, &a.SubscriptionEndDate,
		&renewalPeriod, &a.AutoRenewal, &a.PaymentStatus,
		&a.TotalServicesContracted, &a.ServicesRemaining, &a.BundleExpiryDate,
		&a.ServicesUsedMonth, &a.ServicesUsedTotal, &a.ActiveUserCount,
		&historyJSON, &sponsorshipJSON,
		&a.LastPaymentDate, &a.LastRenewalDate, &a.RenewalCount,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if planKind != nil {
		a.PlanKind = plan.Kind(*planKind)
	}
	if renewalPeriod != nil {
		a.RenewalPeriod = plan.RenewalPeriod(*renewalPeriod)
	}
	if len(historyJSON) > 0 {
		_ = json.Unmarshal(historyJSON, &a.UsageHistory)
	}
	if len(sponsorshipJSON) > 0 {
		a.Sponsorship = &account.Sponsorship{}
		_ = json.Unmarshal(sponsorshipJSON, a.Sponsorship)
	}

	return &a, nil
}
