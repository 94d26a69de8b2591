package planregistry

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"lubripro-service/internal/domain/account"
	"lubripro-service/internal/domain/history"
	"lubripro-service/internal/domain/plan"
	xerrors "lubripro-service/internal/pkg/errors"
	"lubripro-service/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func recurringPlan(code string, price float64) *plan.Plan {
	return &plan.Plan{
		Code:         code,
		Name:         code,
		Kind:         plan.KindRecurring,
		PriceMonthly: sql.NullFloat64{Float64: price, Valid: true},
		MaxUsers:     3,
		Active:       true,
	}
}

type fixture struct {
	registry *Registry
	plans    *testutil.FakePlanRepo
	accounts *testutil.FakeAccountRepo
	history  *testutil.FakeHistoryRepo
	cache    *MemoryCache
}

func newFixture() *fixture {
	f := &fixture{
		plans:    testutil.NewFakePlanRepo(),
		accounts: testutil.NewFakeAccountRepo(),
		history:  &testutil.FakeHistoryRepo{},
		cache:    NewMemoryCache(DefaultCatalogTTL),
	}
	f.registry = NewRegistry(f.plans, f.accounts, f.history, f.cache, zap.NewNop())
	return f
}

func TestResolve_PopulatesCache(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.plans.Seed(recurringPlan("starter", 29.99))

	p, err := f.registry.Resolve(ctx, "starter")
	require.NoError(t, err)
	assert.Equal(t, 29.99, p.PriceMonthly.Float64)

	// The catalogue was cached; a read that bypasses the repo still works.
	f.plans.ListActiveErr = errors.New("db down")
	p, err = f.registry.Resolve(ctx, "starter")
	require.NoError(t, err)
	assert.Equal(t, "starter", p.Code)
}

func TestResolve_UnknownCode(t *testing.T) {
	f := newFixture()
	f.plans.Seed(recurringPlan("starter", 29.99))

	_, err := f.registry.Resolve(context.Background(), "no-such-plan")
	assert.ErrorIs(t, err, xerrors.ErrPlanNotFound)
}

func TestResolve_BuiltInFallback(t *testing.T) {
	f := newFixture()
	f.plans.ListActiveErr = errors.New("db down")

	// Nothing cached and the catalogue read fails: the built-in table serves.
	p, err := f.registry.Resolve(context.Background(), "starter")
	require.NoError(t, err)
	assert.True(t, p.IsDefault)

	p, err = f.registry.Resolve(context.Background(), "sponsored-unlimited")
	require.NoError(t, err)
	assert.Equal(t, plan.KindRecurring, p.Kind)

	_, err = f.registry.Resolve(context.Background(), "custom-plan")
	assert.ErrorIs(t, err, xerrors.ErrPlanNotFound)
}

func TestInvalidate_ForcesReload(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.plans.Seed(recurringPlan("starter", 29.99))

	_, err := f.registry.Resolve(ctx, "starter")
	require.NoError(t, err)

	f.plans.Seed(recurringPlan("fleet", 99.99))

	// Still served from the stale catalogue.
	_, err = f.registry.Resolve(ctx, "fleet")
	assert.ErrorIs(t, err, xerrors.ErrPlanNotFound)

	f.registry.Invalidate(ctx)

	_, err = f.registry.Resolve(ctx, "fleet")
	assert.NoError(t, err)
}

func TestCreatePlan(t *testing.T) {
	f := newFixture()
	price := 39.99

	p, err := f.registry.CreatePlan(context.Background(), &plan.CreatePlanRequest{
		Code:         "fleet",
		Name:         "Fleet",
		Kind:         plan.KindRecurring,
		PriceMonthly: &price,
		MaxUsers:     20,
	}, "admin")
	require.NoError(t, err)

	assert.True(t, p.Active)
	assert.Equal(t, 39.99, p.PriceMonthly.Float64)
	assert.Equal(t, []history.Action{history.ActionPlanUpdate}, f.history.Actions())
}

func TestCreatePlan_ShapeValidation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	price := 10.0
	total := int32(50)
	months := int32(6)

	tests := []struct {
		name string
		req  *plan.CreatePlanRequest
	}{
		{
			name: "recurring without monthly price",
			req:  &plan.CreatePlanRequest{Code: "x", Name: "x", Kind: plan.KindRecurring, MaxUsers: 1},
		},
		{
			name: "bundle without terms",
			req:  &plan.CreatePlanRequest{Code: "x", Name: "x", Kind: plan.KindBundle, MaxUsers: 1, BundlePrice: &price},
		},
		{
			name: "unknown kind",
			req:  &plan.CreatePlanRequest{Code: "x", Name: "x", Kind: "weekly", MaxUsers: 1, PriceMonthly: &price},
		},
		{
			name: "zero max users",
			req: &plan.CreatePlanRequest{Code: "x", Name: "x", Kind: plan.KindBundle,
				BundlePrice: &price, TotalServices: &total, ValidityMonths: &months},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.registry.CreatePlan(ctx, tt.req, "admin")
			assert.ErrorIs(t, err, xerrors.ErrInvalidInput)
		})
	}
}

func TestUpdatePlan(t *testing.T) {
	f := newFixture()
	f.plans.Seed(recurringPlan("starter", 29.99))
	price := 34.99

	p, err := f.registry.UpdatePlan(context.Background(), "starter", &plan.UpdatePlanRequest{
		PriceMonthly: &price,
	}, "admin")
	require.NoError(t, err)
	assert.Equal(t, 34.99, p.PriceMonthly.Float64)

	stored, err := f.plans.FindByCode(context.Background(), "starter")
	require.NoError(t, err)
	assert.Equal(t, 34.99, stored.PriceMonthly.Float64)
}

func TestDeactivatePlan(t *testing.T) {
	f := newFixture()
	f.plans.Seed(recurringPlan("starter", 29.99))

	require.NoError(t, f.registry.DeactivatePlan(context.Background(), "starter", "admin"))

	stored, err := f.plans.FindByCode(context.Background(), "starter")
	require.NoError(t, err)
	assert.False(t, stored.Active)
}

func TestDeletePlan(t *testing.T) {
	ctx := context.Background()

	t.Run("default plans are protected", func(t *testing.T) {
		f := newFixture()
		p := recurringPlan("starter", 29.99)
		p.IsDefault = true
		f.plans.Seed(p)

		err := f.registry.DeletePlan(ctx, "starter", "admin")
		assert.ErrorIs(t, err, xerrors.ErrPlanIsDefault)
	})

	t.Run("plans in use are protected", func(t *testing.T) {
		f := newFixture()
		f.plans.Seed(recurringPlan("fleet", 99.99))
		f.accounts.Seed(&account.Account{
			Status:   account.StatusActive,
			PlanCode: sql.NullString{String: "fleet", Valid: true},
		})

		err := f.registry.DeletePlan(ctx, "fleet", "admin")
		assert.ErrorIs(t, err, xerrors.ErrPlanInUse)
	})

	t.Run("unreferenced plan deletes", func(t *testing.T) {
		f := newFixture()
		f.plans.Seed(recurringPlan("fleet", 99.99))

		require.NoError(t, f.registry.DeletePlan(ctx, "fleet", "admin"))
		_, err := f.plans.FindByCode(ctx, "fleet")
		assert.ErrorIs(t, err, xerrors.ErrPlanNotFound)
	})
}

func TestListPlans(t *testing.T) {
	f := newFixture()
	f.plans.Seed(recurringPlan("starter", 29.99))
	f.plans.Seed(recurringPlan("pro", 59.99))

	res, err := f.registry.ListPlans(context.Background(), &plan.PlanListFilters{Page: 1, PageSize: 20})
	require.NoError(t, err)

	assert.Equal(t, int64(2), res.Total)
	assert.Equal(t, 1, res.TotalPages)
	assert.Len(t, res.Plans, 2)
}

func TestMemoryCacheTTL(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	current := base
	c.now = func() time.Time { return current }

	c.SetCatalog(context.Background(), []plan.Plan{*recurringPlan("starter", 29.99)})

	_, ok := c.GetCatalog(context.Background())
	assert.True(t, ok)

	current = base.Add(2 * time.Minute)
	_, ok = c.GetCatalog(context.Background())
	assert.False(t, ok, "expired catalogue must not be served")
}
