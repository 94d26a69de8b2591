// Package testutil provides in-memory fakes for the service-layer
// interfaces. The fakes reproduce the guard semantics of the postgres
// repositories (conditional updates that report whether they applied) so
// concurrency-sensitive behavior can be tested without a database.
package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"lubripro-service/internal/domain/account"
	"lubripro-service/internal/domain/coupon"
	"lubripro-service/internal/domain/distributor"
	"lubripro-service/internal/domain/history"
	"lubripro-service/internal/domain/payment"
	"lubripro-service/internal/domain/plan"
	xerrors "lubripro-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
)

// FakeTxRunner serializes transaction bodies with a mutex, which mirrors
// what serializable isolation guarantees for the state the fakes hold. The
// pgx.Tx handed to the body is nil; fakes ignore it.
type FakeTxRunner struct {
	mu sync.Mutex
}

func (f *FakeTxRunner) RunSerializable(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fn(ctx, nil)
}

// ---------- accounts ----------

type FakeAccountRepo struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*account.Account
}

func NewFakeAccountRepo() *FakeAccountRepo {
	return &FakeAccountRepo{byID: map[int64]*account.Account{}}
}

// Seed stores an account as-is, assigning an ID when it has none.
func (f *FakeAccountRepo) Seed(a *account.Account) *account.Account {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a.ID == 0 {
		f.nextID++
		a.ID = f.nextID
	} else if a.ID > f.nextID {
		f.nextID = a.ID
	}
	f.byID[a.ID] = cloneAccount(a)
	return a
}

// Get returns the stored state for assertions.
func (f *FakeAccountRepo) Get(id int64) *account.Account {
	f.mu.Lock()
	defer f.mu.Unlock()
	return cloneAccount(f.byID[id])
}

func (f *FakeAccountRepo) Create(_ context.Context, a *account.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	a.ID = f.nextID
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	f.byID[a.ID] = cloneAccount(a)
	return nil
}

func (f *FakeAccountRepo) FindByID(_ context.Context, id int64) (*account.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byID[id]
	if !ok {
		return nil, xerrors.ErrAccountNotFound
	}
	return cloneAccount(a), nil
}

func (f *FakeAccountRepo) FindByIDTx(ctx context.Context, _ pgx.Tx, id int64) (*account.Account, error) {
	return f.FindByID(ctx, id)
}

func (f *FakeAccountRepo) Update(_ context.Context, a *account.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[a.ID]; !ok {
		return xerrors.ErrAccountNotFound
	}
	f.byID[a.ID] = cloneAccount(a)
	return nil
}

func (f *FakeAccountRepo) UpdateTx(ctx context.Context, _ pgx.Tx, a *account.Account) error {
	return f.Update(ctx, a)
}

func (f *FakeAccountRepo) ConsumeTrial(_ context.Context, id int64, monthKey string, maxServices int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byID[id]
	if !ok {
		return false, nil
	}
	if a.Status != account.StatusTrial || !time.Now().Before(a.TrialEndDate) || a.ServicesUsedMonth >= maxServices {
		return false, nil
	}
	consume(a, monthKey)
	return true, nil
}

func (f *FakeAccountRepo) ConsumeRecurring(_ context.Context, id int64, monthKey string, maxMonthly *int32) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byID[id]
	if !ok {
		return false, nil
	}
	if a.Status != account.StatusActive || a.PlanKind != plan.KindRecurring {
		return false, nil
	}
	if maxMonthly != nil && a.ServicesUsedMonth >= int(*maxMonthly) {
		return false, nil
	}
	consume(a, monthKey)
	return true, nil
}

func (f *FakeAccountRepo) ConsumeBundle(_ context.Context, id int64, monthKey string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byID[id]
	if !ok {
		return false, nil
	}
	if a.Status != account.StatusActive || a.PlanKind != plan.KindBundle ||
		a.ServicesRemaining.Int32 <= 0 ||
		(a.BundleExpiryDate.Valid && !time.Now().Before(a.BundleExpiryDate.Time)) {
		return false, nil
	}
	a.ServicesRemaining.Int32--
	consume(a, monthKey)
	return true, nil
}

func (f *FakeAccountRepo) AddActiveUser(_ context.Context, id int64, maxUsers int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byID[id]
	if !ok || a.ActiveUserCount >= maxUsers {
		return false, nil
	}
	a.ActiveUserCount++
	return true, nil
}

func (f *FakeAccountRepo) RemoveActiveUser(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.byID[id]; ok && a.ActiveUserCount > 0 {
		a.ActiveUserCount--
	}
	return nil
}

func (f *FakeAccountRepo) ResetMonthlyCounterTx(_ context.Context, _ pgx.Tx, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byID[id]
	if !ok {
		return xerrors.ErrAccountNotFound
	}
	a.ServicesUsedMonth = 0
	return nil
}

// ExtendTrialTx mirrors the narrow guarded update: only the trial window
// changes, usage counters are untouched.
func (f *FakeAccountRepo) ExtendTrialTx(_ context.Context, _ pgx.Tx, id int64, days int) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byID[id]
	if !ok {
		return time.Time{}, xerrors.ErrAccountNotFound
	}
	if a.Status != account.StatusTrial {
		return time.Time{}, xerrors.ErrInvalidState
	}
	a.TrialEndDate = a.TrialEndDate.AddDate(0, 0, days)
	return a.TrialEndDate, nil
}

func (f *FakeAccountRepo) DeactivateTx(_ context.Context, _ pgx.Tx, id int64, overdue bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byID[id]
	if !ok {
		return xerrors.ErrAccountNotFound
	}
	a.Status = account.StatusInactive
	if overdue {
		a.PaymentStatus = account.PaymentOverdue
	}
	return nil
}

func (f *FakeAccountRepo) StampPaymentTx(_ context.Context, _ pgx.Tx, id int64, paidAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byID[id]
	if !ok {
		return xerrors.ErrAccountNotFound
	}
	a.PaymentStatus = account.PaymentPaid
	a.LastPaymentDate.Time = paidAt
	a.LastPaymentDate.Valid = true
	return nil
}

func (f *FakeAccountRepo) ListDue(_ context.Context, now time.Time, limit int) ([]account.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var due []account.Account
	for _, a := range f.byID {
		if a.Status == account.StatusActive && a.BillingCycleEndDate.Valid && !a.BillingCycleEndDate.Time.After(now) {
			due = append(due, *cloneAccount(a))
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].BillingCycleEndDate.Time.Before(due[j].BillingCycleEndDate.Time)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (f *FakeAccountRepo) CountByPlanCode(_ context.Context, code string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, a := range f.byID {
		if a.PlanCode.Valid && a.PlanCode.String == code {
			n++
		}
	}
	return n, nil
}

func consume(a *account.Account, monthKey string) {
	a.ServicesUsedMonth++
	a.ServicesUsedTotal++
	if a.UsageHistory == nil {
		a.UsageHistory = map[string]int{}
	}
	a.UsageHistory[monthKey]++
}

func cloneAccount(a *account.Account) *account.Account {
	if a == nil {
		return nil
	}
	c := *a
	if a.UsageHistory != nil {
		c.UsageHistory = make(map[string]int, len(a.UsageHistory))
		for k, v := range a.UsageHistory {
			c.UsageHistory[k] = v
		}
	}
	if a.Sponsorship != nil {
		sp := *a.Sponsorship
		c.Sponsorship = &sp
	}
	return &c
}

// ---------- coupons ----------

type FakeCouponRepo struct {
	mu     sync.Mutex
	nextID int64
	byCode map[string]*coupon.Coupon
}

func NewFakeCouponRepo() *FakeCouponRepo {
	return &FakeCouponRepo{byCode: map[string]*coupon.Coupon{}}
}

func (f *FakeCouponRepo) Seed(c *coupon.Coupon) *coupon.Coupon {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.ID == 0 {
		f.nextID++
		c.ID = f.nextID
	}
	f.byCode[c.Code] = cloneCoupon(c)
	return c
}

func (f *FakeCouponRepo) Get(code string) *coupon.Coupon {
	f.mu.Lock()
	defer f.mu.Unlock()
	return cloneCoupon(f.byCode[code])
}

func (f *FakeCouponRepo) CreateTx(_ context.Context, _ pgx.Tx, c *coupon.Coupon) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	c.ID = f.nextID
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	f.byCode[c.Code] = cloneCoupon(c)
	return nil
}

func (f *FakeCouponRepo) CodeExists(_ context.Context, code string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.byCode[code]
	return ok, nil
}

func (f *FakeCouponRepo) FindByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byCode[code]
	if !ok {
		return nil, xerrors.ErrCouponNotFound
	}
	return cloneCoupon(c), nil
}

func (f *FakeCouponRepo) FindByCodeTx(ctx context.Context, _ pgx.Tx, code string) (*coupon.Coupon, error) {
	return f.FindByCode(ctx, code)
}

func (f *FakeCouponRepo) MarkUsedTx(_ context.Context, _ pgx.Tx, id int64, usedBy *coupon.UsedBy) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.byCode {
		if c.ID == id {
			if c.Status != coupon.StatusActive {
				return xerrors.ErrCouponAlreadyUsed
			}
			c.Status = coupon.StatusUsed
			ub := *usedBy
			c.UsedBy = &ub
			return nil
		}
	}
	return xerrors.ErrCouponNotFound
}

func (f *FakeCouponRepo) MarkExpiredIfActive(_ context.Context, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.byCode[code]; ok && c.Status == coupon.StatusActive {
		c.Status = coupon.StatusExpired
	}
	return nil
}

func (f *FakeCouponRepo) ExpireOverdue(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, c := range f.byCode {
		if c.Status == coupon.StatusActive && now.After(c.ValidUntil) {
			c.Status = coupon.StatusExpired
			n++
		}
	}
	return n, nil
}

func (f *FakeCouponRepo) List(_ context.Context, filters *coupon.CouponListFilters) ([]coupon.Coupon, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []coupon.Coupon
	for _, c := range f.byCode {
		if filters.DistributorID != nil && c.DistributorID.Int64 != *filters.DistributorID {
			continue
		}
		if filters.Status != nil && c.Status != *filters.Status {
			continue
		}
		out = append(out, *cloneCoupon(c))
	}
	return out, int64(len(out)), nil
}

func (f *FakeCouponRepo) CountByStatus(_ context.Context, distributorID int64) (map[coupon.Status]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := map[coupon.Status]int{}
	for _, c := range f.byCode {
		if c.DistributorID.Valid && c.DistributorID.Int64 == distributorID {
			counts[c.Status]++
		}
	}
	return counts, nil
}

func (f *FakeCouponRepo) Delete(_ context.Context, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byCode[code]; !ok {
		return xerrors.ErrCouponNotFound
	}
	delete(f.byCode, code)
	return nil
}

func cloneCoupon(c *coupon.Coupon) *coupon.Coupon {
	if c == nil {
		return nil
	}
	cp := *c
	if c.UsedBy != nil {
		ub := *c.UsedBy
		cp.UsedBy = &ub
	}
	return &cp
}

// ---------- distributors ----------

type FakeDistributorRepo struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*distributor.Distributor

	Purchases []distributor.CreditPurchase
}

func NewFakeDistributorRepo() *FakeDistributorRepo {
	return &FakeDistributorRepo{byID: map[int64]*distributor.Distributor{}}
}

func (f *FakeDistributorRepo) Seed(d *distributor.Distributor) *distributor.Distributor {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d.ID == 0 {
		f.nextID++
		d.ID = f.nextID
	}
	cp := *d
	f.byID[d.ID] = &cp
	return d
}

func (f *FakeDistributorRepo) Get(id int64) *distributor.Distributor {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.byID[id]; ok {
		cp := *d
		return &cp
	}
	return nil
}

func (f *FakeDistributorRepo) Create(_ context.Context, d *distributor.Distributor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	d.ID = f.nextID
	d.CreatedAt = time.Now()
	d.UpdatedAt = d.CreatedAt
	cp := *d
	f.byID[d.ID] = &cp
	return nil
}

func (f *FakeDistributorRepo) FindByID(_ context.Context, id int64) (*distributor.Distributor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.byID[id]
	if !ok {
		return nil, xerrors.ErrDistributorNotFound
	}
	cp := *d
	return &cp, nil
}

func (f *FakeDistributorRepo) FindByIDTx(ctx context.Context, _ pgx.Tx, id int64) (*distributor.Distributor, error) {
	return f.FindByID(ctx, id)
}

func (f *FakeDistributorRepo) ConsumeCreditTx(_ context.Context, _ pgx.Tx, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.byID[id]
	if !ok || d.Credits.Available < 1 {
		return xerrors.ErrInsufficientCredits
	}
	d.Credits.Available--
	d.Credits.Used++
	d.Stats.TotalCouponsGenerated++
	return nil
}

func (f *FakeDistributorRepo) CountGeneratedTx(_ context.Context, _ pgx.Tx, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.byID[id]
	if !ok {
		return xerrors.ErrDistributorNotFound
	}
	d.Stats.TotalCouponsGenerated++
	return nil
}

func (f *FakeDistributorRepo) CountRedemptionTx(_ context.Context, _ pgx.Tx, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.byID[id]
	if !ok {
		return xerrors.ErrDistributorNotFound
	}
	d.Stats.TotalCouponsUsed++
	d.Stats.ActiveAccounts++
	return nil
}

func (f *FakeDistributorRepo) AddCreditsTx(_ context.Context, _ pgx.Tx, id int64, quantity int, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.byID[id]
	if !ok {
		return xerrors.ErrDistributorNotFound
	}
	d.Credits.Purchased += quantity
	d.Credits.Available += quantity
	d.LastPurchase.Time = at
	d.LastPurchase.Valid = true
	return nil
}

func (f *FakeDistributorRepo) CreatePurchaseTx(_ context.Context, _ pgx.Tx, p *distributor.CreditPurchase) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p.ID = int64(len(f.Purchases) + 1)
	p.CreatedAt = time.Now()
	f.Purchases = append(f.Purchases, *p)
	return nil
}

func (f *FakeDistributorRepo) UpdateStats(_ context.Context, id int64, stats distributor.Stats) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.byID[id]
	if !ok {
		return xerrors.ErrDistributorNotFound
	}
	d.Stats = stats
	return nil
}

// ---------- payments ----------

type FakePaymentRepo struct {
	mu       sync.Mutex
	Payments []payment.Payment
}

func (f *FakePaymentRepo) Create(_ context.Context, p *payment.Payment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p.ID = int64(len(f.Payments) + 1)
	p.CreatedAt = time.Now()
	f.Payments = append(f.Payments, *p)
	return nil
}

func (f *FakePaymentRepo) CreateTx(ctx context.Context, _ pgx.Tx, p *payment.Payment) error {
	return f.Create(ctx, p)
}

func (f *FakePaymentRepo) ListByAccount(_ context.Context, accountID int64, _ int) ([]payment.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []payment.Payment
	for _, p := range f.Payments {
		if p.AccountID == accountID {
			out = append(out, p)
		}
	}
	return out, nil
}

// ---------- history ----------

type FakeHistoryRepo struct {
	mu      sync.Mutex
	Entries []history.Entry
}

func (f *FakeHistoryRepo) Create(_ context.Context, e *history.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e.ID = int64(len(f.Entries) + 1)
	e.CreatedAt = time.Now()
	f.Entries = append(f.Entries, *e)
	return nil
}

func (f *FakeHistoryRepo) CreateTx(ctx context.Context, _ pgx.Tx, e *history.Entry) error {
	return f.Create(ctx, e)
}

func (f *FakeHistoryRepo) ListByAccount(_ context.Context, accountID int64, _ int) ([]history.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []history.Entry
	for _, e := range f.Entries {
		if e.AccountID.Valid && e.AccountID.Int64 == accountID {
			out = append(out, e)
		}
	}
	return out, nil
}

// Actions lists the recorded action names in order.
func (f *FakeHistoryRepo) Actions() []history.Action {
	f.mu.Lock()
	defer f.mu.Unlock()
	actions := make([]history.Action, len(f.Entries))
	for i, e := range f.Entries {
		actions[i] = e.Action
	}
	return actions
}

// ---------- plans ----------

type FakePlanRepo struct {
	mu     sync.Mutex
	nextID int64
	byCode map[string]*plan.Plan

	// ListActiveErr makes the catalogue read fail, forcing the registry's
	// built-in fallback path.
	ListActiveErr error
}

func NewFakePlanRepo() *FakePlanRepo {
	return &FakePlanRepo{byCode: map[string]*plan.Plan{}}
}

func (f *FakePlanRepo) Seed(p *plan.Plan) *plan.Plan {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p.ID == 0 {
		f.nextID++
		p.ID = f.nextID
	}
	cp := *p
	f.byCode[p.Code] = &cp
	return p
}

func (f *FakePlanRepo) Create(_ context.Context, p *plan.Plan) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	p.ID = f.nextID
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	f.byCode[p.Code] = &cp
	return nil
}

func (f *FakePlanRepo) FindByCode(_ context.Context, code string) (*plan.Plan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byCode[code]
	if !ok {
		return nil, xerrors.ErrPlanNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *FakePlanRepo) ListActive(_ context.Context) ([]plan.Plan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ListActiveErr != nil {
		return nil, f.ListActiveErr
	}
	var out []plan.Plan
	for _, p := range f.byCode {
		if p.Active {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (f *FakePlanRepo) List(_ context.Context, filters *plan.PlanListFilters) ([]plan.Plan, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if filters.Page < 1 {
		filters.Page = 1
	}
	if filters.PageSize < 1 {
		filters.PageSize = 20
	}
	var out []plan.Plan
	for _, p := range f.byCode {
		if filters.Kind != nil && p.Kind != *filters.Kind {
			continue
		}
		if filters.Active != nil && p.Active != *filters.Active {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, int64(len(out)), nil
}

func (f *FakePlanRepo) Update(_ context.Context, p *plan.Plan) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byCode[p.Code]; !ok {
		return xerrors.ErrPlanNotFound
	}
	cp := *p
	f.byCode[p.Code] = &cp
	return nil
}

func (f *FakePlanRepo) Delete(_ context.Context, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byCode[code]; !ok {
		return xerrors.ErrPlanNotFound
	}
	delete(f.byCode, code)
	return nil
}

// FakePlanResolver serves a fixed plan set without a registry.
type FakePlanResolver struct {
	Plans map[string]*plan.Plan
}

func (f *FakePlanResolver) Resolve(_ context.Context, code string) (*plan.Plan, error) {
	p, ok := f.Plans[code]
	if !ok {
		return nil, xerrors.ErrPlanNotFound
	}
	cp := *p
	return &cp, nil
}
