// internal/service/planregistry/registry.go
package planregistry

import (
	"context"
	"fmt"

	"lubripro-service/internal/domain/history"
	"lubripro-service/internal/domain/plan"
	xerrors "lubripro-service/internal/pkg/errors"

	"go.uber.org/zap"
)

// PlanRepo is the catalogue's persistence contract.
type PlanRepo interface {
	Create(ctx context.Context, p *plan.Plan) error
	FindByCode(ctx context.Context, code string) (*plan.Plan, error)
	ListActive(ctx context.Context) ([]plan.Plan, error)
	List(ctx context.Context, filters *plan.PlanListFilters) ([]plan.Plan, int64, error)
	Update(ctx context.Context, p *plan.Plan) error
	Delete(ctx context.Context, code string) error
}

// AccountCounter reports how many accounts reference a plan; deletion is
// refused while any do.
type AccountCounter interface {
	CountByPlanCode(ctx context.Context, code string) (int64, error)
}

// HistoryRepo records plan mutations for audit.
type HistoryRepo interface {
	Create(ctx context.Context, e *history.Entry) error
}

// Cache holds the full catalogue for a bounded TTL. Staleness is tolerable
// for at most the TTL; Invalidate forces the next resolution to reload.
type Cache interface {
	GetCatalog(ctx context.Context) ([]plan.Plan, bool)
	SetCatalog(ctx context.Context, plans []plan.Plan)
	Invalidate(ctx context.Context)
}

// Registry resolves plan codes to their pricing/limit definitions. It
// serves both plan kinds through one interface, caches the catalogue, and
// falls back to a built-in table when the dynamic catalogue is unavailable;
// callers only observe whether resolution succeeded.
type Registry struct {
	planRepo PlanRepo
	accounts AccountCounter
	history  HistoryRepo
	cache    Cache
	logger   *zap.Logger
}

func NewRegistry(planRepo PlanRepo, accounts AccountCounter, historyRepo HistoryRepo, cache Cache, logger *zap.Logger) *Registry {
	return &Registry{
		planRepo: planRepo,
		accounts: accounts,
		history:  historyRepo,
		cache:    cache,
		logger:   logger,
	}
}

// Resolve returns the plan for the given code or ErrPlanNotFound.
func (r *Registry) Resolve(ctx context.Context, code string) (*plan.Plan, error) {
	if plans, ok := r.cache.GetCatalog(ctx); ok {
		if p := findByCode(plans, code); p != nil {
			return p, nil
		}
		return nil, xerrors.ErrPlanNotFound
	}

	plans, err := r.planRepo.ListActive(ctx)
	if err != nil {
		r.logger.Warn("plan catalogue unavailable, serving built-in table", zap.Error(err))
		if p := findByCode(defaultPlans, code); p != nil {
			return p, nil
		}
		return nil, xerrors.ErrPlanNotFound
	}

	r.cache.SetCatalog(ctx, plans)

	if p := findByCode(plans, code); p != nil {
		return p, nil
	}
	return nil, xerrors.ErrPlanNotFound
}

// Invalidate drops the cached catalogue so the next Resolve bypasses it.
func (r *Registry) Invalidate(ctx context.Context) {
	r.cache.Invalidate(ctx)
}

func (r *Registry) CreatePlan(ctx context.Context, req *plan.CreatePlanRequest, actor string) (*plan.Plan, error) {
	p := planFromCreateRequest(req)

	if err := validatePlanShape(p); err != nil {
		return nil, err
	}

	if err := r.planRepo.Create(ctx, p); err != nil {
		return nil, err
	}

	r.cache.Invalidate(ctx)
	r.audit(ctx, p.Code, "created", actor)

	return p, nil
}

// UpdatePlan mutates a catalogue entry. Accounts already on the plan keep
// the terms they activated with; only future activations see the change.
func (r *Registry) UpdatePlan(ctx context.Context, code string, req *plan.UpdatePlanRequest, actor string) (*plan.Plan, error) {
	p, err := r.planRepo.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	applyPlanUpdate(p, req)

	if err := validatePlanShape(p); err != nil {
		return nil, err
	}

	if err := r.planRepo.Update(ctx, p); err != nil {
		return nil, err
	}

	r.cache.Invalidate(ctx)
	r.audit(ctx, code, "updated", actor)

	return p, nil
}

// DeactivatePlan hides a plan from new activations without deleting it.
func (r *Registry) DeactivatePlan(ctx context.Context, code string, actor string) error {
	p, err := r.planRepo.FindByCode(ctx, code)
	if err != nil {
		return err
	}

	p.Active = false
	if err := r.planRepo.Update(ctx, p); err != nil {
		return err
	}

	r.cache.Invalidate(ctx)
	r.audit(ctx, code, "deactivated", actor)

	return nil
}

// DeletePlan removes a plan. Refused while any account references it or
// when the plan is a system default.
func (r *Registry) DeletePlan(ctx context.Context, code string, actor string) error {
	p, err := r.planRepo.FindByCode(ctx, code)
	if err != nil {
		return err
	}

	if p.IsDefault {
		return xerrors.ErrPlanIsDefault
	}

	count, err := r.accounts.CountByPlanCode(ctx, code)
	if err != nil {
		return fmt.Errorf("failed to check plan usage: %w", err)
	}
	if count > 0 {
		return xerrors.ErrPlanInUse
	}

	if err := r.planRepo.Delete(ctx, code); err != nil {
		return err
	}

	r.cache.Invalidate(ctx)
	r.audit(ctx, code, "deleted", actor)

	return nil
}

func (r *Registry) ListPlans(ctx context.Context, filters *plan.PlanListFilters) (*plan.PlanListResponse, error) {
	plans, total, err := r.planRepo.List(ctx, filters)
	if err != nil {
		return nil, err
	}

	totalPages := int(total) / filters.PageSize
	if int(total)%filters.PageSize > 0 {
		totalPages++
	}

	return &plan.PlanListResponse{
		Plans:      plans,
		Total:      total,
		Page:       filters.Page,
		PageSize:   filters.PageSize,
		TotalPages: totalPages,
	}, nil
}

func (r *Registry) audit(ctx context.Context, code, change, actor string) {
	err := r.history.Create(ctx, &history.Entry{
		Action:  history.ActionPlanUpdate,
		Details: map[string]interface{}{"plan_code": code, "change": change},
		Actor:   actor,
	})
	if err != nil {
		r.logger.Error("failed to record plan audit entry",
			zap.String("plan_code", code),
			zap.Error(err),
		)
	}
}

func findByCode(plans []plan.Plan, code string) *plan.Plan {
	for i := range plans {
		if plans[i].Code == code {
			p := plans[i]
			return &p
		}
	}
	return nil
}

func validatePlanShape(p *plan.Plan) error {
	switch p.Kind {
	case plan.KindRecurring:
		if !p.PriceMonthly.Valid {
			return fmt.Errorf("%w: recurring plan requires a monthly price", xerrors.ErrInvalidInput)
		}
	case plan.KindBundle:
		if !p.BundlePrice.Valid || !p.TotalServices.Valid || !p.ValidityMonths.Valid {
			return fmt.Errorf("%w: bundle plan requires price, total services and validity", xerrors.ErrInvalidInput)
		}
	default:
		return fmt.Errorf("%w: unknown plan kind %q", xerrors.ErrInvalidInput, p.Kind)
	}
	if p.MaxUsers < 1 {
		return fmt.Errorf("%w: max users must be positive", xerrors.ErrInvalidInput)
	}
	return nil
}
