package distributor

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"lubripro-service/internal/domain/coupon"
	"lubripro-service/internal/domain/distributor"
	xerrors "lubripro-service/internal/pkg/errors"
	"lubripro-service/internal/testutil"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testNow = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

func newTestService(distributors *testutil.FakeDistributorRepo, coupons *testutil.FakeCouponRepo) *Service {
	return NewService(distributors, coupons, &testutil.FakeTxRunner{}, zap.NewNop()).
		WithClock(func() time.Time { return testNow })
}

func TestUnitPrice(t *testing.T) {
	tests := []struct {
		quantity int
		want     float64
	}{
		{1, 12.0},
		{9, 12.0},
		{10, 10.0},
		{49, 10.0},
		{50, 9.0},
		{99, 9.0},
		{100, 8.0},
		{500, 8.0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, UnitPrice(tt.quantity), "quantity %d", tt.quantity)
	}
}

func TestCreateAndGet(t *testing.T) {
	repo := testutil.NewFakeDistributorRepo()
	svc := newTestService(repo, testutil.NewFakeCouponRepo())

	d, err := svc.Create(context.Background(), "Lubrimax SA")
	require.NoError(t, err)
	assert.NotZero(t, d.ID)
	assert.Equal(t, 0, d.Credits.Available)

	got, err := svc.Get(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, "Lubrimax SA", got.Name)

	_, err = svc.Get(context.Background(), 404)
	assert.ErrorIs(t, err, xerrors.ErrDistributorNotFound)
}

func TestPurchaseCredits(t *testing.T) {
	repo := testutil.NewFakeDistributorRepo()
	svc := newTestService(repo, testutil.NewFakeCouponRepo())

	d, err := svc.Create(context.Background(), "Lubrimax SA")
	require.NoError(t, err)

	res, err := svc.PurchaseCredits(context.Background(), d.ID, &distributor.PurchaseCreditsRequest{
		Quantity:  50,
		Method:    "transfer",
		Reference: "INV-2026-001",
	})
	require.NoError(t, err)

	assert.Equal(t, 9.0, res.UnitPrice)
	assert.Equal(t, 450.0, res.TotalPrice)
	assert.Equal(t, 50, res.Distributor.Credits.Purchased)
	assert.Equal(t, 50, res.Distributor.Credits.Available)
	assert.True(t, res.Distributor.LastPurchase.Valid)

	require.Len(t, repo.Purchases, 1)
	assert.Equal(t, "INV-2026-001", repo.Purchases[0].Reference)
	assert.Equal(t, 450.0, repo.Purchases[0].TotalPrice)
}

func TestPurchaseCredits_KeepsBalanceInvariant(t *testing.T) {
	repo := testutil.NewFakeDistributorRepo()
	svc := newTestService(repo, testutil.NewFakeCouponRepo())

	d, err := svc.Create(context.Background(), "Lubrimax SA")
	require.NoError(t, err)

	_, err = svc.PurchaseCredits(context.Background(), d.ID, &distributor.PurchaseCreditsRequest{Quantity: 10, Method: "cash"})
	require.NoError(t, err)
	_, err = svc.PurchaseCredits(context.Background(), d.ID, &distributor.PurchaseCreditsRequest{Quantity: 5, Method: "cash"})
	require.NoError(t, err)

	stored := repo.Get(d.ID)
	assert.Equal(t, stored.Credits.Purchased-stored.Credits.Used, stored.Credits.Available)
	assert.Equal(t, 15, stored.Credits.Available)
}

func TestPurchaseCredits_DefaultReference(t *testing.T) {
	repo := testutil.NewFakeDistributorRepo()
	svc := newTestService(repo, testutil.NewFakeCouponRepo())

	d, err := svc.Create(context.Background(), "Lubrimax SA")
	require.NoError(t, err)

	_, err = svc.PurchaseCredits(context.Background(), d.ID, &distributor.PurchaseCreditsRequest{Quantity: 1, Method: "cash"})
	require.NoError(t, err)

	require.Len(t, repo.Purchases, 1)
	_, err = ulid.Parse(repo.Purchases[0].Reference)
	assert.NoError(t, err, "generated reference is a ULID")
}

func TestPurchaseCredits_UnknownDistributor(t *testing.T) {
	svc := newTestService(testutil.NewFakeDistributorRepo(), testutil.NewFakeCouponRepo())

	_, err := svc.PurchaseCredits(context.Background(), 404, &distributor.PurchaseCreditsRequest{Quantity: 1, Method: "cash"})
	assert.ErrorIs(t, err, xerrors.ErrDistributorNotFound)
}

func TestRecomputeStats(t *testing.T) {
	repo := testutil.NewFakeDistributorRepo()
	coupons := testutil.NewFakeCouponRepo()
	svc := newTestService(repo, coupons)

	d, err := svc.Create(context.Background(), "Lubrimax SA")
	require.NoError(t, err)

	seed := func(code string, status coupon.Status) {
		coupons.Seed(&coupon.Coupon{
			Code:          code,
			DistributorID: sql.NullInt64{Int64: d.ID, Valid: true},
			Status:        status,
			ValidFrom:     testNow.AddDate(0, -1, 0),
			ValidUntil:    testNow.AddDate(0, 1, 0),
		})
	}
	seed("LUB-2026-STATS001", coupon.StatusActive)
	seed("LUB-2026-STATS002", coupon.StatusActive)
	seed("LUB-2026-STATS003", coupon.StatusUsed)
	seed("LUB-2026-STATS004", coupon.StatusExpired)

	updated, err := svc.RecomputeStats(context.Background(), d.ID)
	require.NoError(t, err)

	assert.Equal(t, 4, updated.Stats.TotalCouponsGenerated)
	assert.Equal(t, 1, updated.Stats.TotalCouponsUsed)
	assert.Equal(t, 1, updated.Stats.TotalCouponsExpired)
	assert.Equal(t, 1, updated.Stats.ActiveAccounts)
}
