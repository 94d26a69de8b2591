package entitlement

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"lubripro-service/internal/domain/account"
	"lubripro-service/internal/domain/history"
	"lubripro-service/internal/domain/plan"
	xerrors "lubripro-service/internal/pkg/errors"
	"lubripro-service/internal/service/usage"
	"lubripro-service/internal/testutil"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testNow = time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

type fixture struct {
	svc      *Service
	accounts *testutil.FakeAccountRepo
	plans    *testutil.FakePlanResolver
	payments *testutil.FakePaymentRepo
	history  *testutil.FakeHistoryRepo
}

func newFixture() *fixture {
	f := &fixture{
		accounts: testutil.NewFakeAccountRepo(),
		plans: &testutil.FakePlanResolver{Plans: map[string]*plan.Plan{
			"starter": {
				Code:               "starter",
				Kind:               plan.KindRecurring,
				PriceMonthly:       sql.NullFloat64{Float64: 29.99, Valid: true},
				MaxUsers:           3,
				MaxMonthlyServices: sql.NullInt32{Int32: 150, Valid: true},
				Active:             true,
			},
			"bundle-100": {
				Code:           "bundle-100",
				Kind:           plan.KindBundle,
				BundlePrice:    sql.NullFloat64{Float64: 199.99, Valid: true},
				MaxUsers:       5,
				TotalServices:  sql.NullInt32{Int32: 100, Valid: true},
				ValidityMonths: sql.NullInt32{Int32: 12, Valid: true},
				Active:         true,
			},
		}},
		payments: &testutil.FakePaymentRepo{},
		history:  &testutil.FakeHistoryRepo{},
	}
	f.svc = NewService(f.accounts, f.plans, f.payments, f.history, &testutil.FakeTxRunner{}, zap.NewNop()).
		WithClock(func() time.Time { return testNow })
	return f
}

func (f *fixture) seedTrial() *account.Account {
	return f.accounts.Seed(&account.Account{
		Name:          "Lubricentro Centro",
		Status:        account.StatusTrial,
		TrialEndDate:  testNow.AddDate(0, 0, 10),
		PaymentStatus: account.PaymentPending,
		UsageHistory:  map[string]int{},
	})
}

func TestCreateAccount(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	a, err := f.svc.CreateAccount(ctx, &account.CreateAccountRequest{Name: "Lubricentro Norte"})
	require.NoError(t, err)

	assert.Equal(t, account.StatusTrial, a.Status)
	assert.Equal(t, testNow.AddDate(0, 0, DefaultTrialDays), a.TrialEndDate)
	assert.Equal(t, account.PaymentPending, a.PaymentStatus)
	assert.NotZero(t, a.ID)
}

func TestCreateAccount_CustomTrialDays(t *testing.T) {
	f := newFixture()

	a, err := f.svc.CreateAccount(context.Background(), &account.CreateAccountRequest{
		Name:      "Lubricentro Sur",
		TrialDays: 30,
	})
	require.NoError(t, err)
	assert.Equal(t, testNow.AddDate(0, 0, 30), a.TrialEndDate)
}

func TestActivate_Recurring(t *testing.T) {
	f := newFixture()
	a := f.seedTrial()
	amount := 29.99

	updated, err := f.svc.Activate(context.Background(), a.ID, &account.ActivateRequest{
		PlanCode:      "starter",
		RenewalPeriod: plan.RenewalMonthly,
		AutoRenewal:   true,
		PaymentAmount: &amount,
		PaymentMethod: "card",
	}, "admin@lubripro")
	require.NoError(t, err)

	assert.Equal(t, account.StatusActive, updated.Status)
	assert.Equal(t, "starter", updated.PlanCode.String)
	assert.Equal(t, plan.KindRecurring, updated.PlanKind)
	assert.True(t, updated.AutoRenewal)
	assert.Equal(t, testNow.AddDate(0, 1, 0), updated.BillingCycleEndDate.Time)
	assert.Equal(t, account.PaymentPaid, updated.PaymentStatus)

	require.Len(t, f.payments.Payments, 1)
	assert.Equal(t, 29.99, f.payments.Payments[0].Amount)
	assert.Equal(t, []history.Action{history.ActionActivation}, f.history.Actions())
}

func TestActivate_SemiannualCycle(t *testing.T) {
	f := newFixture()
	a := f.seedTrial()

	updated, err := f.svc.Activate(context.Background(), a.ID, &account.ActivateRequest{
		PlanCode:      "starter",
		RenewalPeriod: plan.RenewalSemiannual,
	}, "admin")
	require.NoError(t, err)

	assert.Equal(t, testNow.AddDate(0, 6, 0), updated.BillingCycleEndDate.Time)
	// No payment accompanied the activation.
	assert.Equal(t, account.PaymentPending, updated.PaymentStatus)
	assert.Empty(t, f.payments.Payments)
}

func TestActivate_Bundle(t *testing.T) {
	f := newFixture()
	a := f.seedTrial()

	updated, err := f.svc.Activate(context.Background(), a.ID, &account.ActivateRequest{
		PlanCode:    "bundle-100",
		AutoRenewal: true,
	}, "admin")
	require.NoError(t, err)

	assert.Equal(t, plan.KindBundle, updated.PlanKind)
	assert.Equal(t, int32(100), updated.ServicesRemaining.Int32)
	assert.Equal(t, int32(100), updated.TotalServicesContracted.Int32)
	assert.Equal(t, testNow.AddDate(0, 12, 0), updated.BundleExpiryDate.Time)
	assert.False(t, updated.AutoRenewal, "bundles never auto-renew")
	assert.False(t, updated.BillingCycleEndDate.Valid)
}

func TestActivate_UnknownPlanLeavesAccountUntouched(t *testing.T) {
	f := newFixture()
	a := f.seedTrial()

	_, err := f.svc.Activate(context.Background(), a.ID, &account.ActivateRequest{
		PlanCode: "no-such-plan",
	}, "admin")
	assert.ErrorIs(t, err, xerrors.ErrPlanNotFound)

	stored := f.accounts.Get(a.ID)
	assert.Equal(t, account.StatusTrial, stored.Status)
	assert.False(t, stored.PlanCode.Valid)
}

func TestExtendTrial_CompoundsFromCurrentEnd(t *testing.T) {
	f := newFixture()
	a := f.seedTrial()
	originalEnd := a.TrialEndDate

	_, err := f.svc.ExtendTrial(context.Background(), a.ID, 7, "admin")
	require.NoError(t, err)
	updated, err := f.svc.ExtendTrial(context.Background(), a.ID, 7, "admin")
	require.NoError(t, err)

	assert.Equal(t, originalEnd.AddDate(0, 0, 14), updated.TrialEndDate)
	assert.Equal(t,
		[]history.Action{history.ActionTrialExtension, history.ActionTrialExtension},
		f.history.Actions())
}

func TestExtendTrial_RejectsNonTrial(t *testing.T) {
	f := newFixture()
	a := f.accounts.Seed(&account.Account{Status: account.StatusActive})

	_, err := f.svc.ExtendTrial(context.Background(), a.ID, 7, "admin")
	assert.ErrorIs(t, err, xerrors.ErrInvalidState)
}

func TestDeactivate(t *testing.T) {
	f := newFixture()

	t.Run("non-payment flags overdue", func(t *testing.T) {
		a := f.accounts.Seed(&account.Account{Status: account.StatusActive, PaymentStatus: account.PaymentPaid})
		updated, err := f.svc.Deactivate(context.Background(), a.ID, ReasonNonPayment, "admin")
		require.NoError(t, err)
		assert.Equal(t, account.StatusInactive, updated.Status)
		assert.Equal(t, account.PaymentOverdue, updated.PaymentStatus)
	})

	t.Run("voluntary keeps payment status", func(t *testing.T) {
		a := f.accounts.Seed(&account.Account{Status: account.StatusActive, PaymentStatus: account.PaymentPaid})
		updated, err := f.svc.Deactivate(context.Background(), a.ID, "closed shop", "admin")
		require.NoError(t, err)
		assert.Equal(t, account.StatusInactive, updated.Status)
		assert.Equal(t, account.PaymentPaid, updated.PaymentStatus)
	})
}

func TestResetMonthlyCounter(t *testing.T) {
	f := newFixture()
	a := f.accounts.Seed(&account.Account{
		Status:            account.StatusActive,
		ServicesUsedMonth: 42,
		ServicesUsedTotal: 99,
	})

	require.NoError(t, f.svc.ResetMonthlyCounter(context.Background(), a.ID, "admin"))

	stored := f.accounts.Get(a.ID)
	assert.Equal(t, 0, stored.ServicesUsedMonth)
	assert.Equal(t, 99, stored.ServicesUsedTotal, "lifetime counter is untouched")
	assert.Equal(t, []history.Action{history.ActionManualReset}, f.history.Actions())
}

func TestRecordPayment(t *testing.T) {
	f := newFixture()
	a := f.accounts.Seed(&account.Account{Status: account.StatusActive, PaymentStatus: account.PaymentOverdue})

	pay, err := f.svc.RecordPayment(context.Background(), a.ID, &account.RecordPaymentRequest{
		Amount:    59.99,
		Method:    "transfer",
		Reference: "TRX-991",
	}, "admin")
	require.NoError(t, err)

	assert.Equal(t, 59.99, pay.Amount)
	assert.Equal(t, "TRX-991", pay.Reference.String)

	stored := f.accounts.Get(a.ID)
	assert.Equal(t, account.PaymentPaid, stored.PaymentStatus)
	assert.Equal(t, testNow, stored.LastPaymentDate.Time)
	// Status is not RecordPayment's business.
	assert.Equal(t, account.StatusActive, stored.Status)
}

func TestRecordPayment_UnknownAccount(t *testing.T) {
	f := newFixture()
	_, err := f.svc.RecordPayment(context.Background(), 404, &account.RecordPaymentRequest{Amount: 1, Method: "cash"}, "admin")
	assert.ErrorIs(t, err, xerrors.ErrAccountNotFound)
}

func TestRenewAccount(t *testing.T) {
	f := newFixture()
	cycleEnd := testNow.AddDate(0, 0, -1)
	a := f.accounts.Seed(&account.Account{
		Status:              account.StatusActive,
		PlanCode:            sql.NullString{String: "starter", Valid: true},
		PlanKind:            plan.KindRecurring,
		RenewalPeriod:       plan.RenewalMonthly,
		BillingCycleEndDate: sql.NullTime{Time: cycleEnd, Valid: true},
		ServicesUsedMonth:   80,
	})

	require.NoError(t, f.svc.RenewAccount(context.Background(), a.ID, testNow, "renewal-processor"))

	stored := f.accounts.Get(a.ID)
	// The new cycle extends from the old end date, not from now.
	assert.Equal(t, cycleEnd.AddDate(0, 1, 0), stored.BillingCycleEndDate.Time)
	assert.Equal(t, 0, stored.ServicesUsedMonth)
	assert.Equal(t, account.PaymentPaid, stored.PaymentStatus)
	assert.Equal(t, 1, stored.RenewalCount)
	assert.Equal(t, []history.Action{history.ActionRenewed}, f.history.Actions())
}

func TestRenewAccount_RejectsNonBillable(t *testing.T) {
	f := newFixture()
	a := f.seedTrial()

	err := f.svc.RenewAccount(context.Background(), a.ID, testNow, "renewal-processor")
	assert.ErrorIs(t, err, xerrors.ErrInvalidState)
}

// consumeDuringRead lands one metered service right after a transition's
// transactional read, mimicking a meter increment racing the transition.
type consumeDuringRead struct {
	*testutil.FakeAccountRepo
	once sync.Once
}

func (w *consumeDuringRead) FindByIDTx(ctx context.Context, tx pgx.Tx, id int64) (*account.Account, error) {
	a, err := w.FakeAccountRepo.FindByIDTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	w.once.Do(func() {
		_, _ = w.FakeAccountRepo.ConsumeTrial(ctx, id, account.MonthKey(time.Now()), usage.TrialMaxServices)
	})
	return a, nil
}

func (f *fixture) withRacingMeter() *Service {
	return NewService(&consumeDuringRead{FakeAccountRepo: f.accounts}, f.plans, f.payments, f.history,
		&testutil.FakeTxRunner{}, zap.NewNop()).
		WithClock(func() time.Time { return testNow })
}

func (f *fixture) seedLiveTrial() (*account.Account, time.Time) {
	end := time.Now().AddDate(0, 0, 30)
	a := f.accounts.Seed(&account.Account{
		Name:         "Lubricentro Centro",
		Status:       account.StatusTrial,
		TrialEndDate: end,
		UsageHistory: map[string]int{},
	})
	return a, end
}

func TestExtendTrial_PreservesConcurrentUsage(t *testing.T) {
	f := newFixture()
	svc := f.withRacingMeter()
	a, end := f.seedLiveTrial()

	updated, err := svc.ExtendTrial(context.Background(), a.ID, 7, "admin")
	require.NoError(t, err)
	assert.Equal(t, end.AddDate(0, 0, 7), updated.TrialEndDate)

	stored := f.accounts.Get(a.ID)
	assert.Equal(t, 1, stored.ServicesUsedMonth, "a service consumed mid-transition must survive")
	assert.Equal(t, end.AddDate(0, 0, 7), stored.TrialEndDate)
}

func TestDeactivate_PreservesConcurrentUsage(t *testing.T) {
	f := newFixture()
	svc := f.withRacingMeter()
	a, _ := f.seedLiveTrial()

	_, err := svc.Deactivate(context.Background(), a.ID, "closed shop", "admin")
	require.NoError(t, err)

	stored := f.accounts.Get(a.ID)
	assert.Equal(t, account.StatusInactive, stored.Status)
	assert.Equal(t, 1, stored.ServicesUsedMonth, "a service consumed mid-transition must survive")
}

// failingHistory refuses transactional audit writes.
type failingHistory struct {
	*testutil.FakeHistoryRepo
}

func (f *failingHistory) CreateTx(context.Context, pgx.Tx, *history.Entry) error {
	return errors.New("history unavailable")
}

func TestTransitionsFailWhenAuditFails(t *testing.T) {
	f := newFixture()
	svc := NewService(f.accounts, f.plans, f.payments, &failingHistory{FakeHistoryRepo: f.history},
		&testutil.FakeTxRunner{}, zap.NewNop()).
		WithClock(func() time.Time { return testNow })

	a := f.seedTrial()

	_, err := svc.ExtendTrial(context.Background(), a.ID, 7, "admin")
	assert.Error(t, err)

	_, err = svc.Deactivate(context.Background(), a.ID, "closed shop", "admin")
	assert.Error(t, err)

	assert.Error(t, svc.ResetMonthlyCounter(context.Background(), a.ID, "admin"))
}

func TestExpireAccount(t *testing.T) {
	f := newFixture()
	a := f.accounts.Seed(&account.Account{
		Status:      account.StatusActive,
		AutoRenewal: true,
	})

	require.NoError(t, f.svc.ExpireAccount(context.Background(), a.ID, testNow, "renewal-processor"))

	stored := f.accounts.Get(a.ID)
	assert.Equal(t, account.StatusInactive, stored.Status)
	assert.Equal(t, account.PaymentOverdue, stored.PaymentStatus)
	assert.False(t, stored.AutoRenewal)
	assert.Equal(t, []history.Action{history.ActionExpired}, f.history.Actions())
}
