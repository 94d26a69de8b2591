// internal/service/coupon/coupon_service.go
package coupon

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"lubripro-service/internal/domain/account"
	"lubripro-service/internal/domain/coupon"
	"lubripro-service/internal/domain/distributor"
	"lubripro-service/internal/domain/history"
	"lubripro-service/internal/domain/payment"
	"lubripro-service/internal/domain/plan"
	xerrors "lubripro-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

const (
	// DefaultValidityDays bounds a coupon's redemption window when the
	// issuer does not choose one.
	DefaultValidityDays = 90

	// Marker plan codes for sponsored memberships; seeded in migrations
	// and present in the registry's built-in table.
	SponsoredUnlimitedPlan = "sponsored-unlimited"
	SponsoredBundlePlan    = "sponsored-bundle"

	maxCodeAttempts = 5
)

type CouponRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, c *coupon.Coupon) error
	CodeExists(ctx context.Context, code string) (bool, error)
	FindByCode(ctx context.Context, code string) (*coupon.Coupon, error)
	FindByCodeTx(ctx context.Context, tx pgx.Tx, code string) (*coupon.Coupon, error)
	MarkUsedTx(ctx context.Context, tx pgx.Tx, id int64, usedBy *coupon.UsedBy) error
	MarkExpiredIfActive(ctx context.Context, code string) error
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)
	List(ctx context.Context, filters *coupon.CouponListFilters) ([]coupon.Coupon, int64, error)
	Delete(ctx context.Context, code string) error
}

type AccountRepo interface {
	FindByIDTx(ctx context.Context, tx pgx.Tx, id int64) (*account.Account, error)
	UpdateTx(ctx context.Context, tx pgx.Tx, a *account.Account) error
}

type DistributorRepo interface {
	FindByID(ctx context.Context, id int64) (*distributor.Distributor, error)
	ConsumeCreditTx(ctx context.Context, tx pgx.Tx, id int64) error
	CountGeneratedTx(ctx context.Context, tx pgx.Tx, id int64) error
	CountRedemptionTx(ctx context.Context, tx pgx.Tx, id int64) error
}

type PaymentRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, p *payment.Payment) error
}

type HistoryRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, e *history.Entry) error
}

type TxRunner interface {
	RunSerializable(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error
}

// Service issues, validates and redeems coupons. Redemption is the one
// operation that must mutate coupon, account, distributor stats and the
// payment ledger exactly once, as a unit.
type Service struct {
	coupons      CouponRepo
	accounts     AccountRepo
	distributors DistributorRepo
	payments     PaymentRepo
	history      HistoryRepo
	db           TxRunner
	logger       *zap.Logger
	now          func() time.Time
}

func NewService(
	coupons CouponRepo,
	accounts AccountRepo,
	distributors DistributorRepo,
	payments PaymentRepo,
	historyRepo HistoryRepo,
	db TxRunner,
	logger *zap.Logger,
) *Service {
	return &Service{
		coupons:      coupons,
		accounts:     accounts,
		distributors: distributors,
		payments:     payments,
		history:      historyRepo,
		db:           db,
		logger:       logger,
		now:          time.Now,
	}
}

// WithClock overrides the service clock; tests use this.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Issue mints a coupon. Distributor-issued coupons spend one credit,
// re-checked inside the transaction so a stale balance read can never
// overdraw; admin issuance costs nothing.
func (s *Service) Issue(ctx context.Context, req *coupon.IssueCouponRequest, actor string, isAdmin bool) (*coupon.Coupon, error) {
	if req.DistributorID == nil && !isAdmin {
		return nil, fmt.Errorf("%w: distributor required for non-admin issuance", xerrors.ErrInvalidInput)
	}

	if req.DistributorID != nil {
		d, err := s.distributors.FindByID(ctx, *req.DistributorID)
		if err != nil {
			return nil, err
		}
		if !isAdmin && d.Credits.Available < 1 {
			return nil, xerrors.ErrInsufficientCredits
		}
	}

	validityDays := req.ValidityDays
	if validityDays <= 0 {
		validityDays = DefaultValidityDays
	}

	now := s.now()
	c := &coupon.Coupon{
		Status:     coupon.StatusActive,
		ValidFrom:  now,
		ValidUntil: now.AddDate(0, 0, validityDays),
		Benefits: coupon.Benefits{
			MembershipMonths:        req.MembershipMonths,
			UnlimitedServices:       req.UnlimitedServices,
			TotalServicesContracted: req.TotalServicesContracted,
			ExtraFeatures:           req.ExtraFeatures,
		},
		CreatedBy: actor,
	}
	if req.DistributorID != nil {
		c.DistributorID = sql.NullInt64{Int64: *req.DistributorID, Valid: true}
	}

	for attempt := 1; attempt <= maxCodeAttempts; attempt++ {
		code, err := generateCode(now)
		if err != nil {
			return nil, err
		}

		if taken, err := s.coupons.CodeExists(ctx, code); err != nil {
			return nil, err
		} else if taken {
			continue
		}

		c.Code = code
		err = s.db.RunSerializable(ctx, func(ctx context.Context, tx pgx.Tx) error {
			if err := s.coupons.CreateTx(ctx, tx, c); err != nil {
				return err
			}

			if req.DistributorID == nil {
				return nil
			}
			if isAdmin {
				return s.distributors.CountGeneratedTx(ctx, tx, *req.DistributorID)
			}
			return s.distributors.ConsumeCreditTx(ctx, tx, *req.DistributorID)
		})
		if isUniqueViolation(err) {
			// Lost the code to a concurrent issuer; mint a fresh one.
			continue
		}
		if err != nil {
			return nil, err
		}

		s.logger.Info("coupon issued",
			zap.String("code", c.Code),
			zap.String("actor", actor),
			zap.Bool("admin", isAdmin),
		)

		return c, nil
	}

	return nil, fmt.Errorf("failed to generate a unique coupon code after %d attempts", maxCodeAttempts)
}

// Validate probes a code without redeeming it. The only mutation a
// validation may perform is the lazy flip of a time-expired coupon to
// expired, which is idempotent.
func (s *Service) Validate(ctx context.Context, code string) (*coupon.ValidationResult, error) {
	c, err := s.coupons.FindByCode(ctx, code)
	if errors.Is(err, xerrors.ErrCouponNotFound) {
		return &coupon.ValidationResult{Valid: false, Message: "code does not exist"}, nil
	}
	if err != nil {
		return nil, err
	}

	now := s.now()
	switch {
	case c.Status == coupon.StatusUsed:
		return &coupon.ValidationResult{Valid: false, Message: "already used"}, nil

	case c.Status == coupon.StatusExpired:
		return &coupon.ValidationResult{Valid: false, Message: "expired"}, nil

	case c.TimeExpired(now):
		if err := s.coupons.MarkExpiredIfActive(ctx, code); err != nil {
			s.logger.Warn("lazy coupon expiry failed", zap.String("code", code), zap.Error(err))
		}
		return &coupon.ValidationResult{Valid: false, Message: "expired"}, nil

	case now.Before(c.ValidFrom):
		return &coupon.ValidationResult{Valid: false, Message: "not yet valid"}, nil
	}

	benefits := c.Benefits
	return &coupon.ValidationResult{Valid: true, Message: "valid", Benefits: &benefits}, nil
}

// Redeem applies a coupon to an account, exactly once. The coupon is
// re-read inside the serializable transaction; of N concurrent redemptions
// of one code exactly one commits and the rest fail with AlreadyUsed or
// Expired. Any precondition failure aborts with no partial writes.
func (s *Service) Redeem(ctx context.Context, code string, accountID int64, actor string) (*coupon.RedeemResult, error) {
	var result *coupon.RedeemResult

	err := s.db.RunSerializable(ctx, func(ctx context.Context, tx pgx.Tx) error {
		c, err := s.coupons.FindByCodeTx(ctx, tx, code)
		if err != nil {
			return err
		}

		now := s.now()
		switch {
		case c.Status == coupon.StatusUsed:
			return xerrors.ErrCouponAlreadyUsed
		case c.Status == coupon.StatusExpired, c.TimeExpired(now):
			return xerrors.ErrCouponExpired
		case now.Before(c.ValidFrom):
			return xerrors.ErrCouponNotYetValid
		}

		a, err := s.accounts.FindByIDTx(ctx, tx, accountID)
		if err != nil {
			return err
		}

		applyBenefits(a, c, now)

		if err := s.accounts.UpdateTx(ctx, tx, a); err != nil {
			return err
		}

		usedBy := &coupon.UsedBy{
			AccountID:   a.ID,
			AccountName: a.Name,
			UsedAt:      now,
			Actor:       actor,
		}
		if err := s.coupons.MarkUsedTx(ctx, tx, c.ID, usedBy); err != nil {
			return err
		}

		if c.DistributorID.Valid {
			if err := s.distributors.CountRedemptionTx(ctx, tx, c.DistributorID.Int64); err != nil {
				return err
			}
		}

		pay := &payment.Payment{
			AccountID: accountID,
			Amount:    0,
			Method:    payment.MethodCoupon,
			Reference: sql.NullString{String: c.Code, Valid: true},
			PaidAt:    now,
		}
		if err := s.payments.CreateTx(ctx, tx, pay); err != nil {
			return err
		}

		err = s.history.CreateTx(ctx, tx, &history.Entry{
			AccountID: sql.NullInt64{Int64: accountID, Valid: true},
			Action:    history.ActionCouponRedeemed,
			Details: map[string]interface{}{
				"code":              c.Code,
				"membership_months": c.Benefits.MembershipMonths,
			},
			Actor: actor,
		})
		if err != nil {
			return err
		}

		result = &coupon.RedeemResult{
			Code:        c.Code,
			AccountID:   accountID,
			ActiveUntil: a.Sponsorship.ExpiresAt,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("coupon redeemed",
		zap.String("code", code),
		zap.Int64("account_id", accountID),
	)

	return result, nil
}

// applyBenefits computes the account mutation a redemption grants. The
// membership extends from the current sponsorship expiry when one is still
// running, so stacked coupons add up instead of overlapping.
func applyBenefits(a *account.Account, c *coupon.Coupon, now time.Time) {
	base := now
	if a.Sponsorship != nil && a.Sponsorship.ExpiresAt.After(now) {
		base = a.Sponsorship.ExpiresAt
	}
	expiresAt := base.AddDate(0, c.Benefits.MembershipMonths, 0)

	a.Sponsorship = &account.Sponsorship{
		CouponCode:    c.Code,
		DistributorID: c.DistributorID.Int64,
		ExpiresAt:     expiresAt,
	}

	a.Status = account.StatusActive
	a.PaymentStatus = account.PaymentPaid
	a.AutoRenewal = false
	a.RenewalPeriod = ""
	a.ServicesUsedMonth = 0
	a.ServicesUsedTotal = 0

	if !c.Benefits.UnlimitedServices && c.Benefits.TotalServicesContracted > 0 {
		n := int32(c.Benefits.TotalServicesContracted)
		a.PlanCode = sql.NullString{String: SponsoredBundlePlan, Valid: true}
		a.PlanKind = plan.KindBundle
		a.TotalServicesContracted = sql.NullInt32{Int32: n, Valid: true}
		a.ServicesRemaining = sql.NullInt32{Int32: n, Valid: true}
		a.BundleExpiryDate = sql.NullTime{Time: expiresAt, Valid: true}
		a.BillingCycleEndDate = sql.NullTime{}
		a.NextPaymentDate = sql.NullTime{}
		a.SubscriptionEndDate = sql.NullTime{}
		return
	}

	// Unlimited during the sponsored membership, explicitly granted or by
	// default.
	a.PlanCode = sql.NullString{String: SponsoredUnlimitedPlan, Valid: true}
	a.PlanKind = plan.KindRecurring
	a.TotalServicesContracted = sql.NullInt32{}
	a.ServicesRemaining = sql.NullInt32{}
	a.BundleExpiryDate = sql.NullTime{}
	a.BillingCycleEndDate = sql.NullTime{Time: expiresAt, Valid: true}
	a.NextPaymentDate = sql.NullTime{}
	a.SubscriptionEndDate = sql.NullTime{Time: expiresAt, Valid: true}
}

// Sweep expires every active coupon past its validity window.
func (s *Service) Sweep(ctx context.Context) (int64, error) {
	n, err := s.coupons.ExpireOverdue(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("expired overdue coupons", zap.Int64("count", n))
	}
	return n, nil
}

// List retrieves coupons for tables and distributor dashboards.
func (s *Service) List(ctx context.Context, filters *coupon.CouponListFilters) (*coupon.CouponListResponse, error) {
	coupons, total, err := s.coupons.List(ctx, filters)
	if err != nil {
		return nil, err
	}

	return &coupon.CouponListResponse{
		Coupons:  coupons,
		Total:    total,
		Page:     filters.Page,
		PageSize: filters.PageSize,
	}, nil
}

// Delete removes a coupon permanently. Coupons are otherwise retained for
// audit after use or expiry; this is the explicit administrative override.
func (s *Service) Delete(ctx context.Context, code string, actor string) error {
	if err := s.coupons.Delete(ctx, code); err != nil {
		return err
	}

	s.logger.Info("coupon deleted", zap.String("code", code), zap.String("actor", actor))
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
