// internal/service/entitlement/entitlement_service.go
package entitlement

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"lubripro-service/internal/domain/account"
	"lubripro-service/internal/domain/history"
	"lubripro-service/internal/domain/payment"
	"lubripro-service/internal/domain/plan"
	xerrors "lubripro-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// ReasonNonPayment marks deactivations caused by an unpaid cycle; they
// leave the account flagged overdue.
const ReasonNonPayment = "non_payment"

type AccountRepo interface {
	Create(ctx context.Context, a *account.Account) error
	FindByID(ctx context.Context, id int64) (*account.Account, error)
	FindByIDTx(ctx context.Context, tx pgx.Tx, id int64) (*account.Account, error)
	UpdateTx(ctx context.Context, tx pgx.Tx, a *account.Account) error
	ExtendTrialTx(ctx context.Context, tx pgx.Tx, id int64, days int) (time.Time, error)
	DeactivateTx(ctx context.Context, tx pgx.Tx, id int64, overdue bool) error
	ResetMonthlyCounterTx(ctx context.Context, tx pgx.Tx, id int64) error
	StampPaymentTx(ctx context.Context, tx pgx.Tx, id int64, paidAt time.Time) error
}

type PlanResolver interface {
	Resolve(ctx context.Context, code string) (*plan.Plan, error)
}

type PaymentRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, p *payment.Payment) error
	ListByAccount(ctx context.Context, accountID int64, limit int) ([]payment.Payment, error)
}

type HistoryRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, e *history.Entry) error
	ListByAccount(ctx context.Context, accountID int64, limit int) ([]history.Entry, error)
}

// TxRunner executes a transaction body with serializable isolation and
// conflict-triggered retry. Bodies must be safe to run more than once.
type TxRunner interface {
	RunSerializable(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error
}

// Service owns account status and the transitions between trial, active
// and inactive. Transitions are rejected, never coerced: an unreadable
// account or an illegal source state surfaces as a typed error.
type Service struct {
	accounts AccountRepo
	plans    PlanResolver
	payments PaymentRepo
	history  HistoryRepo
	db       TxRunner
	logger   *zap.Logger
	now      func() time.Time
}

func NewService(
	accounts AccountRepo,
	plans PlanResolver,
	payments PaymentRepo,
	historyRepo HistoryRepo,
	db TxRunner,
	logger *zap.Logger,
) *Service {
	return &Service{
		accounts: accounts,
		plans:    plans,
		payments: payments,
		history:  historyRepo,
		db:       db,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock overrides the service clock; tests use this.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// DefaultTrialDays is the fixed trial window granted to new accounts.
const DefaultTrialDays = 14

// CreateAccount registers a tenant in trial state.
func (s *Service) CreateAccount(ctx context.Context, req *account.CreateAccountRequest) (*account.Account, error) {
	trialDays := req.TrialDays
	if trialDays <= 0 {
		trialDays = DefaultTrialDays
	}

	a := &account.Account{
		Name:          req.Name,
		Status:        account.StatusTrial,
		TrialEndDate:  s.now().AddDate(0, 0, trialDays),
		PaymentStatus: account.PaymentPending,
		UsageHistory:  map[string]int{},
	}

	if err := s.accounts.Create(ctx, a); err != nil {
		return nil, err
	}

	s.logger.Info("account created",
		zap.Int64("account_id", a.ID),
		zap.Time("trial_end", a.TrialEndDate),
	)

	return a, nil
}

func (s *Service) GetAccount(ctx context.Context, id int64) (*account.Account, error) {
	return s.accounts.FindByID(ctx, id)
}

// Activate puts the account on the given plan. An unresolvable plan code
// fails with ErrPlanNotFound and leaves the account untouched.
func (s *Service) Activate(ctx context.Context, accountID int64, req *account.ActivateRequest, actor string) (*account.Account, error) {
	p, err := s.plans.Resolve(ctx, req.PlanCode)
	if err != nil {
		return nil, err
	}

	period := req.RenewalPeriod
	if period == "" {
		period = plan.RenewalMonthly
	}

	var updated *account.Account
	err = s.db.RunSerializable(ctx, func(ctx context.Context, tx pgx.Tx) error {
		a, err := s.accounts.FindByIDTx(ctx, tx, accountID)
		if err != nil {
			return err
		}

		now := s.now()
		paid := req.PaymentAmount != nil
		applyActivation(a, p, period, req.AutoRenewal, paid, now)

		if err := s.accounts.UpdateTx(ctx, tx, a); err != nil {
			return err
		}

		if paid {
			pay := &payment.Payment{
				AccountID: accountID,
				Amount:    *req.PaymentAmount,
				Method:    req.PaymentMethod,
				PaidAt:    now,
			}
			if req.PaymentReference != "" {
				pay.Reference = sql.NullString{String: req.PaymentReference, Valid: true}
			}
			if err := s.payments.CreateTx(ctx, tx, pay); err != nil {
				return err
			}
		}

		err = s.history.CreateTx(ctx, tx, &history.Entry{
			AccountID: sql.NullInt64{Int64: accountID, Valid: true},
			Action:    history.ActionActivation,
			Details: map[string]interface{}{
				"plan_code": p.Code,
				"plan_kind": string(p.Kind),
				"period":    string(period),
			},
			Actor: actor,
		})
		if err != nil {
			return err
		}

		updated = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("account activated",
		zap.Int64("account_id", accountID),
		zap.String("plan_code", p.Code),
		zap.String("plan_kind", string(p.Kind)),
	)

	return updated, nil
}

// applyActivation rewrites the account's entitlement fields for the plan.
func applyActivation(a *account.Account, p *plan.Plan, period plan.RenewalPeriod, autoRenewal, paid bool, now time.Time) {
	a.Status = account.StatusActive
	a.PlanCode = sql.NullString{String: p.Code, Valid: true}
	a.PlanKind = p.Kind

	if a.UsageHistory == nil {
		a.UsageHistory = map[string]int{}
	}

	switch p.Kind {
	case plan.KindBundle:
		months := int(p.ValidityMonths.Int32)
		expiry := now.AddDate(0, months, 0)
		a.BundleExpiryDate = sql.NullTime{Time: expiry, Valid: true}
		a.TotalServicesContracted = p.TotalServices
		a.ServicesRemaining = p.TotalServices
		a.ServicesUsedTotal = 0
		// Bundle plans never auto-renew.
		a.AutoRenewal = false
		a.BillingCycleEndDate = sql.NullTime{}
		a.NextPaymentDate = sql.NullTime{}
		a.SubscriptionEndDate = sql.NullTime{}
		a.RenewalPeriod = ""

	default: // recurring
		months := plan.PeriodMonths(period)
		cycleEnd := now.AddDate(0, months, 0)
		a.BillingCycleEndDate = sql.NullTime{Time: cycleEnd, Valid: true}
		a.NextPaymentDate = sql.NullTime{Time: cycleEnd, Valid: true}
		a.SubscriptionEndDate = sql.NullTime{Time: cycleEnd, Valid: true}
		a.RenewalPeriod = period
		a.AutoRenewal = autoRenewal
		a.ServicesUsedMonth = 0
		a.UsageHistory[account.MonthKey(now)] = 0
		a.TotalServicesContracted = sql.NullInt32{}
		a.ServicesRemaining = sql.NullInt32{}
		a.BundleExpiryDate = sql.NullTime{}
	}

	if paid {
		a.PaymentStatus = account.PaymentPaid
		a.LastPaymentDate = sql.NullTime{Time: now, Valid: true}
	} else {
		a.PaymentStatus = account.PaymentPending
	}
}

// ExtendTrial adds days to the trial end date. Extensions compound from
// the current end date, not from now, so repeated extensions add up even
// when called after partial elapse. The update touches only the trial
// window, so a metering increment racing the extension is never rewritten.
func (s *Service) ExtendTrial(ctx context.Context, accountID int64, days int, actor string) (*account.Account, error) {
	var updated *account.Account
	err := s.db.RunSerializable(ctx, func(ctx context.Context, tx pgx.Tx) error {
		a, err := s.accounts.FindByIDTx(ctx, tx, accountID)
		if err != nil {
			return err
		}

		if a.Status != account.StatusTrial {
			return fmt.Errorf("%w: cannot extend trial of %s account", xerrors.ErrInvalidState, a.Status)
		}

		newEnd, err := s.accounts.ExtendTrialTx(ctx, tx, accountID, days)
		if err != nil {
			return err
		}
		a.TrialEndDate = newEnd

		err = s.history.CreateTx(ctx, tx, &history.Entry{
			AccountID: sql.NullInt64{Int64: accountID, Valid: true},
			Action:    history.ActionTrialExtension,
			Details: map[string]interface{}{
				"days":          days,
				"new_trial_end": newEnd,
			},
			Actor: actor,
		})
		if err != nil {
			return err
		}

		updated = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("trial extended",
		zap.Int64("account_id", accountID),
		zap.Time("new_trial_end", updated.TrialEndDate),
	)

	return updated, nil
}

// Deactivate turns the account off. Non-payment deactivations flag the
// account overdue. The status flip leaves usage counters alone.
func (s *Service) Deactivate(ctx context.Context, accountID int64, reason, actor string) (*account.Account, error) {
	overdue := reason == ReasonNonPayment

	var updated *account.Account
	err := s.db.RunSerializable(ctx, func(ctx context.Context, tx pgx.Tx) error {
		a, err := s.accounts.FindByIDTx(ctx, tx, accountID)
		if err != nil {
			return err
		}

		if err := s.accounts.DeactivateTx(ctx, tx, accountID, overdue); err != nil {
			return err
		}

		a.Status = account.StatusInactive
		if overdue {
			a.PaymentStatus = account.PaymentOverdue
		}

		err = s.history.CreateTx(ctx, tx, &history.Entry{
			AccountID: sql.NullInt64{Int64: accountID, Valid: true},
			Action:    history.ActionDeactivation,
			Details: map[string]interface{}{
				"reason": reason,
			},
			Actor: actor,
		})
		if err != nil {
			return err
		}

		updated = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("account deactivated",
		zap.Int64("account_id", accountID),
		zap.String("reason", reason),
	)

	return updated, nil
}

// ResetMonthlyCounter zeroes the monthly usage counter without changing
// status; bundle balances are untouched. The audit entry commits with the
// reset or not at all.
func (s *Service) ResetMonthlyCounter(ctx context.Context, accountID int64, actor string) error {
	return s.db.RunSerializable(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := s.accounts.ResetMonthlyCounterTx(ctx, tx, accountID); err != nil {
			return err
		}
		return s.history.CreateTx(ctx, tx, &history.Entry{
			AccountID: sql.NullInt64{Int64: accountID, Valid: true},
			Action:    history.ActionManualReset,
			Actor:     actor,
		})
	})
}

// RecordPayment appends a ledger entry and marks the account paid. It never
// changes the account's status by itself.
func (s *Service) RecordPayment(ctx context.Context, accountID int64, req *account.RecordPaymentRequest, actor string) (*payment.Payment, error) {
	if _, err := s.accounts.FindByID(ctx, accountID); err != nil {
		return nil, err
	}

	now := s.now()
	pay := &payment.Payment{
		AccountID: accountID,
		Amount:    req.Amount,
		Method:    req.Method,
		PaidAt:    now,
	}
	if req.Reference != "" {
		pay.Reference = sql.NullString{String: req.Reference, Valid: true}
	}

	err := s.db.RunSerializable(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := s.payments.CreateTx(ctx, tx, pay); err != nil {
			return err
		}
		return s.accounts.StampPaymentTx(ctx, tx, accountID, now)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("payment recorded",
		zap.Int64("account_id", accountID),
		zap.Float64("amount", req.Amount),
		zap.String("method", req.Method),
	)

	return pay, nil
}

// RenewAccount advances an active recurring account by one renewal period,
// resetting the monthly counter. The batch processor and manual renewals
// share this primitive.
func (s *Service) RenewAccount(ctx context.Context, accountID int64, now time.Time, actor string) error {
	err := s.db.RunSerializable(ctx, func(ctx context.Context, tx pgx.Tx) error {
		a, err := s.accounts.FindByIDTx(ctx, tx, accountID)
		if err != nil {
			return err
		}

		if a.Status != account.StatusActive || !a.BillingCycleEndDate.Valid {
			return fmt.Errorf("%w: account %d is not on a billable cycle", xerrors.ErrInvalidState, accountID)
		}

		months := plan.PeriodMonths(a.RenewalPeriod)
		newEnd := a.BillingCycleEndDate.Time.AddDate(0, months, 0)

		a.ServicesUsedMonth = 0
		a.BillingCycleEndDate = sql.NullTime{Time: newEnd, Valid: true}
		a.NextPaymentDate = sql.NullTime{Time: newEnd, Valid: true}
		a.SubscriptionEndDate = sql.NullTime{Time: newEnd, Valid: true}
		a.PaymentStatus = account.PaymentPaid
		a.LastRenewalDate = sql.NullTime{Time: now, Valid: true}
		a.RenewalCount++

		if err := s.accounts.UpdateTx(ctx, tx, a); err != nil {
			return err
		}

		return s.history.CreateTx(ctx, tx, &history.Entry{
			AccountID: sql.NullInt64{Int64: accountID, Valid: true},
			Action:    history.ActionRenewed,
			Details: map[string]interface{}{
				"new_cycle_end": newEnd,
				"renewal_count": a.RenewalCount,
			},
			Actor: actor,
		})
	})
	if err != nil {
		return err
	}

	s.logger.Info("account renewed", zap.Int64("account_id", accountID))
	return nil
}

// ExpireAccount turns an elapsed account off, flagging it overdue. The
// batch processor and manual expirations share this primitive.
func (s *Service) ExpireAccount(ctx context.Context, accountID int64, now time.Time, actor string) error {
	err := s.db.RunSerializable(ctx, func(ctx context.Context, tx pgx.Tx) error {
		a, err := s.accounts.FindByIDTx(ctx, tx, accountID)
		if err != nil {
			return err
		}

		a.Status = account.StatusInactive
		a.PaymentStatus = account.PaymentOverdue
		a.AutoRenewal = false

		if err := s.accounts.UpdateTx(ctx, tx, a); err != nil {
			return err
		}

		return s.history.CreateTx(ctx, tx, &history.Entry{
			AccountID: sql.NullInt64{Int64: accountID, Valid: true},
			Action:    history.ActionExpired,
			Details: map[string]interface{}{
				"expired_at": now,
			},
			Actor: actor,
		})
	})
	if err != nil {
		return err
	}

	s.logger.Info("account expired", zap.Int64("account_id", accountID))
	return nil
}

// ListPayments returns the account's payment ledger.
func (s *Service) ListPayments(ctx context.Context, accountID int64, limit int) ([]payment.Payment, error) {
	if _, err := s.accounts.FindByID(ctx, accountID); err != nil {
		return nil, err
	}
	return s.payments.ListByAccount(ctx, accountID, limit)
}

// ListHistory returns the account's billing events.
func (s *Service) ListHistory(ctx context.Context, accountID int64, limit int) ([]history.Entry, error) {
	if _, err := s.accounts.FindByID(ctx, accountID); err != nil {
		return nil, err
	}
	return s.history.ListByAccount(ctx, accountID, limit)
}
