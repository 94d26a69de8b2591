package coupon

import (
	"context"
	"database/sql"
	"regexp"
	"sync"
	"testing"
	"time"

	"lubripro-service/internal/domain/account"
	"lubripro-service/internal/domain/coupon"
	"lubripro-service/internal/domain/distributor"
	"lubripro-service/internal/domain/history"
	"lubripro-service/internal/domain/payment"
	"lubripro-service/internal/domain/plan"
	xerrors "lubripro-service/internal/pkg/errors"
	"lubripro-service/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testNow = time.Date(2026, 5, 15, 9, 0, 0, 0, time.UTC)

type fixture struct {
	svc          *Service
	coupons      *testutil.FakeCouponRepo
	accounts     *testutil.FakeAccountRepo
	distributors *testutil.FakeDistributorRepo
	payments     *testutil.FakePaymentRepo
	history      *testutil.FakeHistoryRepo
}

func newFixture() *fixture {
	f := &fixture{
		coupons:      testutil.NewFakeCouponRepo(),
		accounts:     testutil.NewFakeAccountRepo(),
		distributors: testutil.NewFakeDistributorRepo(),
		payments:     &testutil.FakePaymentRepo{},
		history:      &testutil.FakeHistoryRepo{},
	}
	f.svc = NewService(f.coupons, f.accounts, f.distributors, f.payments, f.history, &testutil.FakeTxRunner{}, zap.NewNop()).
		WithClock(func() time.Time { return testNow })
	return f
}

func (f *fixture) seedDistributor(credits int) *distributor.Distributor {
	d := &distributor.Distributor{Name: "Lubrimax SA"}
	d.Credits.Purchased = credits
	d.Credits.Available = credits
	return f.distributors.Seed(d)
}

func (f *fixture) seedCoupon(c *coupon.Coupon) *coupon.Coupon {
	if c.ValidFrom.IsZero() {
		c.ValidFrom = testNow.AddDate(0, 0, -1)
	}
	if c.ValidUntil.IsZero() {
		c.ValidUntil = testNow.AddDate(0, 0, 30)
	}
	if c.Status == "" {
		c.Status = coupon.StatusActive
	}
	return f.coupons.Seed(c)
}

func (f *fixture) seedAccount() *account.Account {
	return f.accounts.Seed(&account.Account{
		Name:         "Lubricentro Este",
		Status:       account.StatusTrial,
		TrialEndDate: testNow.AddDate(0, 0, 5),
		UsageHistory: map[string]int{},
	})
}

var codePattern = regexp.MustCompile(`^LUB-2026-[ABCDEFGHJKLMNPQRSTUVWXYZ23456789]{8}$`)

func TestIssue_DistributorSpendsCredit(t *testing.T) {
	f := newFixture()
	d := f.seedDistributor(3)

	c, err := f.svc.Issue(context.Background(), &coupon.IssueCouponRequest{
		DistributorID:    &d.ID,
		MembershipMonths: 6,
	}, "dist-user", false)
	require.NoError(t, err)

	assert.Regexp(t, codePattern, c.Code)
	assert.Equal(t, coupon.StatusActive, c.Status)
	assert.Equal(t, testNow.AddDate(0, 0, DefaultValidityDays), c.ValidUntil)
	assert.Equal(t, d.ID, c.DistributorID.Int64)

	stored := f.distributors.Get(d.ID)
	assert.Equal(t, 2, stored.Credits.Available)
	assert.Equal(t, 1, stored.Credits.Used)
	assert.Equal(t, 1, stored.Stats.TotalCouponsGenerated)
}

func TestIssue_InsufficientCredits(t *testing.T) {
	f := newFixture()
	d := f.seedDistributor(0)

	_, err := f.svc.Issue(context.Background(), &coupon.IssueCouponRequest{
		DistributorID:    &d.ID,
		MembershipMonths: 1,
	}, "dist-user", false)
	assert.ErrorIs(t, err, xerrors.ErrInsufficientCredits)
}

func TestIssue_AdminCostsNothing(t *testing.T) {
	f := newFixture()
	d := f.seedDistributor(0)

	c, err := f.svc.Issue(context.Background(), &coupon.IssueCouponRequest{
		DistributorID:    &d.ID,
		MembershipMonths: 12,
		ValidityDays:     365,
	}, "admin", true)
	require.NoError(t, err)

	assert.Equal(t, testNow.AddDate(0, 0, 365), c.ValidUntil)

	stored := f.distributors.Get(d.ID)
	assert.Equal(t, 0, stored.Credits.Used)
	assert.Equal(t, 1, stored.Stats.TotalCouponsGenerated)
}

func TestIssue_AdminWithoutDistributor(t *testing.T) {
	f := newFixture()

	c, err := f.svc.Issue(context.Background(), &coupon.IssueCouponRequest{
		MembershipMonths:  3,
		UnlimitedServices: true,
	}, "admin", true)
	require.NoError(t, err)
	assert.False(t, c.DistributorID.Valid)
}

func TestIssue_NonAdminRequiresDistributor(t *testing.T) {
	f := newFixture()

	_, err := f.svc.Issue(context.Background(), &coupon.IssueCouponRequest{
		MembershipMonths: 3,
	}, "someone", false)
	assert.ErrorIs(t, err, xerrors.ErrInvalidInput)
}

func TestValidate(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.seedCoupon(&coupon.Coupon{Code: "LUB-2026-GOODCODE", Benefits: coupon.Benefits{MembershipMonths: 6}})
	f.seedCoupon(&coupon.Coupon{Code: "LUB-2026-USEDCODE", Status: coupon.StatusUsed})
	f.seedCoupon(&coupon.Coupon{
		Code:      "LUB-2026-WAITCODE",
		ValidFrom: testNow.AddDate(0, 0, 2),
	})

	tests := []struct {
		code    string
		valid   bool
		message string
	}{
		{"LUB-2026-GOODCODE", true, "valid"},
		{"LUB-2026-USEDCODE", false, "already used"},
		{"LUB-2026-WAITCODE", false, "not yet valid"},
		{"LUB-2026-NOPENOPE", false, "code does not exist"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			res, err := f.svc.Validate(ctx, tt.code)
			require.NoError(t, err)
			assert.Equal(t, tt.valid, res.Valid)
			assert.Equal(t, tt.message, res.Message)
		})
	}

	t.Run("valid result carries benefits", func(t *testing.T) {
		res, err := f.svc.Validate(ctx, "LUB-2026-GOODCODE")
		require.NoError(t, err)
		require.NotNil(t, res.Benefits)
		assert.Equal(t, 6, res.Benefits.MembershipMonths)
	})
}

func TestValidate_LazyExpiry(t *testing.T) {
	f := newFixture()
	f.seedCoupon(&coupon.Coupon{
		Code:       "LUB-2025-OLDCODE1",
		ValidFrom:  testNow.AddDate(0, -6, 0),
		ValidUntil: testNow.AddDate(0, 0, -1),
	})

	res, err := f.svc.Validate(context.Background(), "LUB-2025-OLDCODE1")
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, "expired", res.Message)

	// The overdue coupon was flipped in storage.
	assert.Equal(t, coupon.StatusExpired, f.coupons.Get("LUB-2025-OLDCODE1").Status)
}

func TestRedeem_UnlimitedMembership(t *testing.T) {
	f := newFixture()
	d := f.seedDistributor(5)
	a := f.seedAccount()
	c := f.seedCoupon(&coupon.Coupon{
		Code:          "LUB-2026-REDEEM01",
		DistributorID: sql.NullInt64{Int64: d.ID, Valid: true},
		Benefits:      coupon.Benefits{MembershipMonths: 6, UnlimitedServices: true},
	})

	res, err := f.svc.Redeem(context.Background(), c.Code, a.ID, "admin")
	require.NoError(t, err)

	wantExpiry := testNow.AddDate(0, 6, 0)
	assert.Equal(t, wantExpiry, res.ActiveUntil)

	stored := f.accounts.Get(a.ID)
	assert.Equal(t, account.StatusActive, stored.Status)
	assert.Equal(t, SponsoredUnlimitedPlan, stored.PlanCode.String)
	assert.Equal(t, plan.KindRecurring, stored.PlanKind)
	assert.Equal(t, account.PaymentPaid, stored.PaymentStatus)
	require.NotNil(t, stored.Sponsorship)
	assert.Equal(t, c.Code, stored.Sponsorship.CouponCode)
	assert.Equal(t, wantExpiry, stored.Sponsorship.ExpiresAt)

	// Coupon flipped to used with the redemption recorded.
	used := f.coupons.Get(c.Code)
	assert.Equal(t, coupon.StatusUsed, used.Status)
	require.NotNil(t, used.UsedBy)
	assert.Equal(t, a.ID, used.UsedBy.AccountID)

	// Distributor stats, zero-amount ledger entry and audit trail.
	assert.Equal(t, 1, f.distributors.Get(d.ID).Stats.TotalCouponsUsed)
	require.Len(t, f.payments.Payments, 1)
	assert.Equal(t, payment.MethodCoupon, f.payments.Payments[0].Method)
	assert.Equal(t, 0.0, f.payments.Payments[0].Amount)
	assert.Equal(t, []history.Action{history.ActionCouponRedeemed}, f.history.Actions())
}

func TestRedeem_BundleBenefits(t *testing.T) {
	f := newFixture()
	a := f.seedAccount()
	c := f.seedCoupon(&coupon.Coupon{
		Code:     "LUB-2026-BUNDLE01",
		Benefits: coupon.Benefits{MembershipMonths: 12, TotalServicesContracted: 50},
	})

	_, err := f.svc.Redeem(context.Background(), c.Code, a.ID, "admin")
	require.NoError(t, err)

	stored := f.accounts.Get(a.ID)
	assert.Equal(t, SponsoredBundlePlan, stored.PlanCode.String)
	assert.Equal(t, plan.KindBundle, stored.PlanKind)
	assert.Equal(t, int32(50), stored.ServicesRemaining.Int32)
	assert.Equal(t, testNow.AddDate(0, 12, 0), stored.BundleExpiryDate.Time)
}

func TestRedeem_StackedCouponsExtend(t *testing.T) {
	f := newFixture()
	a := f.seedAccount()
	first := f.seedCoupon(&coupon.Coupon{
		Code:     "LUB-2026-STACK001",
		Benefits: coupon.Benefits{MembershipMonths: 6, UnlimitedServices: true},
	})
	second := f.seedCoupon(&coupon.Coupon{
		Code:     "LUB-2026-STACK002",
		Benefits: coupon.Benefits{MembershipMonths: 3, UnlimitedServices: true},
	})

	_, err := f.svc.Redeem(context.Background(), first.Code, a.ID, "admin")
	require.NoError(t, err)
	res, err := f.svc.Redeem(context.Background(), second.Code, a.ID, "admin")
	require.NoError(t, err)

	// The second membership starts where the first ends.
	assert.Equal(t, testNow.AddDate(0, 9, 0), res.ActiveUntil)
}

func TestRedeem_TerminalStates(t *testing.T) {
	f := newFixture()
	a := f.seedAccount()

	f.seedCoupon(&coupon.Coupon{Code: "LUB-2026-USEDUSED", Status: coupon.StatusUsed})
	f.seedCoupon(&coupon.Coupon{
		Code:       "LUB-2025-TOOLATE1",
		ValidFrom:  testNow.AddDate(0, -6, 0),
		ValidUntil: testNow.AddDate(0, 0, -1),
	})
	f.seedCoupon(&coupon.Coupon{
		Code:       "LUB-2026-TOOSOON1",
		ValidFrom:  testNow.AddDate(0, 0, 2),
		ValidUntil: testNow.AddDate(0, 1, 0),
	})

	_, err := f.svc.Redeem(context.Background(), "LUB-2026-USEDUSED", a.ID, "admin")
	assert.ErrorIs(t, err, xerrors.ErrCouponAlreadyUsed)

	_, err = f.svc.Redeem(context.Background(), "LUB-2025-TOOLATE1", a.ID, "admin")
	assert.ErrorIs(t, err, xerrors.ErrCouponExpired)

	// Not yet valid is its own refusal, not an expiry.
	_, err = f.svc.Redeem(context.Background(), "LUB-2026-TOOSOON1", a.ID, "admin")
	assert.ErrorIs(t, err, xerrors.ErrCouponNotYetValid)
	assert.NotErrorIs(t, err, xerrors.ErrCouponExpired)

	_, err = f.svc.Redeem(context.Background(), "LUB-2026-MISSING1", a.ID, "admin")
	assert.ErrorIs(t, err, xerrors.ErrCouponNotFound)

	// Failed redemptions leave no partial writes.
	assert.Empty(t, f.payments.Payments)
	assert.Empty(t, f.history.Entries)
	assert.Equal(t, account.StatusTrial, f.accounts.Get(a.ID).Status)
}

func TestRedeem_ExactlyOnce(t *testing.T) {
	f := newFixture()
	c := f.seedCoupon(&coupon.Coupon{
		Code:     "LUB-2026-RACECODE",
		Benefits: coupon.Benefits{MembershipMonths: 6, UnlimitedServices: true},
	})

	const n = 10
	ids := make([]int64, n)
	for i := range ids {
		ids[i] = f.seedAccount().ID
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Redeem(context.Background(), c.Code, ids[i], "admin")
		}(i)
	}
	wg.Wait()

	var wins int
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, xerrors.ErrCouponAlreadyUsed)
		}
	}
	assert.Equal(t, 1, wins, "exactly one concurrent redemption may commit")
	assert.Len(t, f.payments.Payments, 1)
	assert.Len(t, f.history.Entries, 1)
}

func TestSweep(t *testing.T) {
	f := newFixture()
	f.seedCoupon(&coupon.Coupon{
		Code:       "LUB-2025-SWEEP001",
		ValidFrom:  testNow.AddDate(0, -6, 0),
		ValidUntil: testNow.AddDate(0, 0, -10),
	})
	f.seedCoupon(&coupon.Coupon{Code: "LUB-2026-SWEEP002"})

	n, err := f.svc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	assert.Equal(t, coupon.StatusExpired, f.coupons.Get("LUB-2025-SWEEP001").Status)
	assert.Equal(t, coupon.StatusActive, f.coupons.Get("LUB-2026-SWEEP002").Status)
}

func TestDelete(t *testing.T) {
	f := newFixture()
	f.seedCoupon(&coupon.Coupon{Code: "LUB-2026-DELETEME"})

	require.NoError(t, f.svc.Delete(context.Background(), "LUB-2026-DELETEME", "admin"))
	assert.ErrorIs(t, f.svc.Delete(context.Background(), "LUB-2026-DELETEME", "admin"), xerrors.ErrCouponNotFound)
}

func TestGenerateCode(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		code, err := generateCode(testNow)
		require.NoError(t, err)
		assert.Regexp(t, codePattern, code)
		seen[code] = true
	}
	assert.Greater(t, len(seen), 99, "codes are effectively unique")
}
