// internal/repository/postgres/plan_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"lubripro-service/internal/domain/plan"
	xerrors "lubripro-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PlanRepository struct {
	db *pgxpool.Pool
}

func NewPlanRepository(db *pgxpool.Pool) *PlanRepository {
	return &PlanRepository{db: db}
}

const planColumns = `
	id, code, name, description, kind,
	price_monthly, price_semiannual, bundle_price,
	max_users, max_monthly_services, total_services, validity_months,
	is_default, active, created_at, updated_at
`

func (r *PlanRepository) Create(ctx context.Context, p *plan.Plan) error {
	query := `
		INSERT INTO plans (
			code, name, description, kind,
			price_monthly, price_semiannual, bundle_price,
			max_users, max_monthly_services, total_services, validity_months,
			is_default, active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(
		ctx, query,
		p.Code, p.Name, p.Description, p.Kind,
		p.PriceMonthly, p.PriceSemiannual, p.BundlePrice,
		p.MaxUsers, p.MaxMonthlyServices, p.TotalServices, p.ValidityMonths,
		p.IsDefault, p.Active,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create plan: %w", err)
	}

	return nil
}

func (r *PlanRepository) FindByCode(ctx context.Context, code string) (*plan.Plan, error) {
	query := fmt.Sprintf(`SELECT %s FROM plans WHERE code = $1`, planColumns)

	p, err := scanPlan(r.db.QueryRow(ctx, query, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrPlanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find plan: %w", err)
	}

	return p, nil
}

// ListActive returns every active catalogue entry; the registry caches the
// result.
func (r *PlanRepository) ListActive(ctx context.Context) ([]plan.Plan, error) {
	query := fmt.Sprintf(`SELECT %s FROM plans WHERE active ORDER BY code`, planColumns)

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer rows.Close()

	var plans []plan.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		plans = append(plans, *p)
	}

	return plans, rows.Err()
}

// List retrieves plans with filters and pagination.
func (r *PlanRepository) List(ctx context.Context, filters *plan.PlanListFilters) ([]plan.Plan, int64, error) {
	conditions := []string{"TRUE"}
	args := []interface{}{}
	argPos := 1

	if filters.Kind != nil {
		conditions = append(conditions, fmt.Sprintf("kind = $%d", argPos))
		args = append(args, *filters.Kind)
		argPos++
	}

	if filters.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", argPos))
		args = append(args, *filters.Active)
		argPos++
	}

	if filters.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(name ILIKE $%d OR code ILIKE $%d)", argPos, argPos))
		args = append(args, "%"+filters.Search+"%")
		argPos++
	}

	whereClause := strings.Join(conditions, " AND ")

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM plans WHERE %s", whereClause)
	var total int64
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count plans: %w", err)
	}

	if filters.Page < 1 {
		filters.Page = 1
	}
	if filters.PageSize < 1 {
		filters.PageSize = 20
	}

	sortBy := "code"
	switch filters.SortBy {
	case "name", "created_at", "kind":
		sortBy = filters.SortBy
	}
	sortOrder := "ASC"
	if strings.EqualFold(filters.SortOrder, "desc") {
		sortOrder = "DESC"
	}

	query := fmt.Sprintf(`
		SELECT %s FROM plans
		WHERE %s
		ORDER BY %s %s
		LIMIT $%d OFFSET $%d
	`, planColumns, whereClause, sortBy, sortOrder, argPos, argPos+1)
	args = append(args, filters.PageSize, (filters.Page-1)*filters.PageSize)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list plans: %w", err)
	}
	defer rows.Close()

	var plans []plan.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan plan: %w", err)
		}
		plans = append(plans, *p)
	}

	return plans, total, rows.Err()
}

func (r *PlanRepository) Update(ctx context.Context, p *plan.Plan) error {
	query := `
		UPDATE plans SET
			name = $1, description = $2,
			price_monthly = $3, price_semiannual = $4, bundle_price = $5,
			max_users = $6, max_monthly_services = $7,
			total_services = $8, validity_months = $9,
			active = $10, updated_at = $11
		WHERE code = $12
	`

	tag, err := r.db.Exec(
		ctx, query,
		p.Name, p.Description,
		p.PriceMonthly, p.PriceSemiannual, p.BundlePrice,
		p.MaxUsers, p.MaxMonthlyServices,
		p.TotalServices, p.ValidityMonths,
		p.Active, time.Now(),
		p.Code,
	)
	if err != nil {
		return fmt.Errorf("failed to update plan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrPlanNotFound
	}

	return nil
}

func (r *PlanRepository) Delete(ctx context.Context, code string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM plans WHERE code = $1`, code)
	if err != nil {
		return fmt.Errorf("failed to delete plan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrPlanNotFound
	}

	return nil
}

func scanPlan(row pgx.Row) (*plan.Plan, error) {
	var p plan.Plan
	err := row.Scan(
		&p.ID, &p.Code, &p.Name, &p.Description, &p.Kind,
		&p.PriceMonthly, &p.PriceSemiannual, &p.BundlePrice,
		&p.MaxUsers, &p.MaxMonthlyServices, &p.TotalServices, &p.ValidityMonths,
		&p.IsDefault, &p.Active, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
