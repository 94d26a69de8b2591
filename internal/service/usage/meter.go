// internal/service/usage/meter.go
package usage

import (
	"context"
	"fmt"
	"time"

	"lubripro-service/internal/domain/account"
	"lubripro-service/internal/domain/plan"
	xerrors "lubripro-service/internal/pkg/errors"

	"go.uber.org/zap"
)

// Trial caps apply before any plan is contracted.
const (
	TrialMaxServices = 10
	TrialMaxUsers    = 2
)

// Unlimited is the remaining-count signal for plans without a quota.
const Unlimited = -1

// Warning levels derived from the remaining balance; display only, they
// never influence admission.
const (
	WarnNone     = "none"
	WarnLow      = "low"
	WarnCritical = "critical"
)

// Decision is a typed probe result: callers routinely ask "can I log one
// more service" and a denial is not an error.
type Decision struct {
	Allowed   bool   `json:"allowed"`
	Reason    string `json:"reason,omitempty"`
	Remaining int    `json:"remaining"`
}

type AccountRepo interface {
	FindByID(ctx context.Context, id int64) (*account.Account, error)
	ConsumeTrial(ctx context.Context, id int64, monthKey string, maxServices int) (bool, error)
	ConsumeRecurring(ctx context.Context, id int64, monthKey string, maxMonthly *int32) (bool, error)
	ConsumeBundle(ctx context.Context, id int64, monthKey string) (bool, error)
	AddActiveUser(ctx context.Context, id int64, maxUsers int) (bool, error)
	RemoveActiveUser(ctx context.Context, id int64) error
}

type PlanResolver interface {
	Resolve(ctx context.Context, code string) (*plan.Plan, error)
}

// Meter tracks services consumed and users active against an account's
// contracted limits.
type Meter struct {
	accounts AccountRepo
	plans    PlanResolver
	logger   *zap.Logger
	now      func() time.Time
}

func NewMeter(accounts AccountRepo, plans PlanResolver, logger *zap.Logger) *Meter {
	return &Meter{
		accounts: accounts,
		plans:    plans,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock overrides the meter's clock; tests use this.
func (m *Meter) WithClock(now func() time.Time) *Meter {
	m.now = now
	return m
}

// CanConsume decides whether one more service may be logged. Pure with
// respect to its inputs; p may be nil unless the account is active.
func CanConsume(a *account.Account, p *plan.Plan, now time.Time) Decision {
	switch a.Status {
	case account.StatusInactive:
		return Decision{Allowed: false, Reason: "account inactive", Remaining: 0}

	case account.StatusTrial:
		if !now.Before(a.TrialEndDate) {
			return Decision{Allowed: false, Reason: "trial expired", Remaining: 0}
		}
		remaining := TrialMaxServices - a.ServicesUsedMonth
		if remaining <= 0 {
			return Decision{Allowed: false, Reason: "trial limit reached", Remaining: 0}
		}
		return Decision{Allowed: true, Remaining: remaining}

	case account.StatusActive:
		if a.PlanKind == plan.KindBundle {
			if a.BundleExpiryDate.Valid && !now.Before(a.BundleExpiryDate.Time) {
				return Decision{Allowed: false, Reason: "bundle expired", Remaining: 0}
			}
			remaining := int(a.ServicesRemaining.Int32)
			if remaining <= 0 {
				return Decision{Allowed: false, Reason: "bundle exhausted", Remaining: 0}
			}
			return Decision{Allowed: true, Remaining: remaining}
		}

		// Recurring.
		if p == nil || p.UnlimitedMonthly() {
			return Decision{Allowed: true, Remaining: Unlimited}
		}
		remaining := int(p.MaxMonthlyServices.Int32) - a.ServicesUsedMonth
		if remaining <= 0 {
			return Decision{Allowed: false, Reason: "monthly limit reached", Remaining: 0}
		}
		return Decision{Allowed: true, Remaining: remaining}
	}

	return Decision{Allowed: false, Reason: "unknown account status", Remaining: 0}
}

// CanAddUser mirrors CanConsume for seats. MaxUsers is always a positive
// integer; there is no unlimited case.
func CanAddUser(a *account.Account, p *plan.Plan) Decision {
	maxUsers := TrialMaxUsers
	switch a.Status {
	case account.StatusInactive:
		return Decision{Allowed: false, Reason: "account inactive", Remaining: 0}
	case account.StatusActive:
		if p != nil {
			maxUsers = p.MaxUsers
		}
	}

	remaining := maxUsers - a.ActiveUserCount
	if remaining <= 0 {
		return Decision{Allowed: false, Reason: "user limit reached", Remaining: 0}
	}
	return Decision{Allowed: true, Remaining: remaining}
}

// WarnLevel maps a remaining balance to a display-only warning level.
func WarnLevel(remaining int) string {
	switch {
	case remaining == Unlimited:
		return WarnNone
	case remaining <= 2:
		return WarnCritical
	case remaining <= 5:
		return WarnLow
	default:
		return WarnNone
	}
}

// Check reads the account and answers whether one more service is allowed.
func (m *Meter) Check(ctx context.Context, accountID int64) (Decision, error) {
	a, p, err := m.load(ctx, accountID)
	if err != nil {
		return Decision{}, err
	}
	return CanConsume(a, p, m.now()), nil
}

// CheckUser answers whether one more active user fits within the plan.
func (m *Meter) CheckUser(ctx context.Context, accountID int64) (Decision, error) {
	a, p, err := m.load(ctx, accountID)
	if err != nil {
		return Decision{}, err
	}
	return CanAddUser(a, p), nil
}

// ConsumeOne records one consumed service. The underlying update re-checks
// the limit atomically, so two concurrent consumers can never push usage
// past the contracted ceiling.
func (m *Meter) ConsumeOne(ctx context.Context, accountID int64) (Decision, error) {
	a, p, err := m.load(ctx, accountID)
	if err != nil {
		return Decision{}, err
	}

	now := m.now()
	decision := CanConsume(a, p, now)
	if !decision.Allowed {
		return decision, fmt.Errorf("%w: %s", xerrors.ErrLimitExceeded, decision.Reason)
	}

	monthKey := account.MonthKey(now)

	var applied bool
	switch {
	case a.Status == account.StatusTrial:
		applied, err = m.accounts.ConsumeTrial(ctx, accountID, monthKey, TrialMaxServices)
	case a.PlanKind == plan.KindBundle:
		applied, err = m.accounts.ConsumeBundle(ctx, accountID, monthKey)
	default:
		var maxMonthly *int32
		if p != nil && p.MaxMonthlyServices.Valid {
			maxMonthly = &p.MaxMonthlyServices.Int32
		}
		applied, err = m.accounts.ConsumeRecurring(ctx, accountID, monthKey, maxMonthly)
	}
	if err != nil {
		return Decision{}, err
	}
	if !applied {
		// The guard lost a race: someone else took the last unit.
		return Decision{Allowed: false, Reason: "limit reached", Remaining: 0},
			fmt.Errorf("%w: limit reached", xerrors.ErrLimitExceeded)
	}

	if decision.Remaining != Unlimited {
		decision.Remaining--
	}

	m.logger.Info("service consumed",
		zap.Int64("account_id", accountID),
		zap.Int("remaining", decision.Remaining),
	)

	return decision, nil
}

// AddUser registers one more active user, guarded by the plan's seat cap.
func (m *Meter) AddUser(ctx context.Context, accountID int64) error {
	a, p, err := m.load(ctx, accountID)
	if err != nil {
		return err
	}

	decision := CanAddUser(a, p)
	if !decision.Allowed {
		return fmt.Errorf("%w: %s", xerrors.ErrLimitExceeded, decision.Reason)
	}

	maxUsers := TrialMaxUsers
	if a.Status == account.StatusActive && p != nil {
		maxUsers = p.MaxUsers
	}

	applied, err := m.accounts.AddActiveUser(ctx, accountID, maxUsers)
	if err != nil {
		return err
	}
	if !applied {
		return fmt.Errorf("%w: user limit reached", xerrors.ErrLimitExceeded)
	}

	return nil
}

// RemoveUser unregisters an active user.
func (m *Meter) RemoveUser(ctx context.Context, accountID int64) error {
	return m.accounts.RemoveActiveUser(ctx, accountID)
}

func (m *Meter) load(ctx context.Context, accountID int64) (*account.Account, *plan.Plan, error) {
	a, err := m.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, nil, err
	}

	var p *plan.Plan
	if a.Status == account.StatusActive && a.PlanCode.Valid {
		p, err = m.plans.Resolve(ctx, a.PlanCode.String)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to resolve plan %q: %w", a.PlanCode.String, err)
		}
	}

	return a, p, nil
}
