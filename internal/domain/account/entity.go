// internal/domain/account/entity.go
package account

import (
	"database/sql"
	"time"

	"lubripro-service/internal/domain/plan"
)

type Status string

const (
	StatusTrial    Status = "trial"
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

type PaymentStatus string

const (
	PaymentPaid    PaymentStatus = "paid"
	PaymentPending PaymentStatus = "pending"
	PaymentOverdue PaymentStatus = "overdue"
)

// Sponsorship records the coupon/distributor that activated the account.
type Sponsorship struct {
	CouponCode    string    `json:"coupon_code"`
	DistributorID int64     `json:"distributor_id"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// Account is a tenant (lubricentro) whose entitlement this service manages.
// Trial, recurring and bundle fields are mode-dependent; use the accessor
// methods rather than reading nullable fields directly.
type Account struct {
	ID     int64  `json:"id" db:"id"`
	Name   string `json:"name" db:"name"`
	Status Status `json:"status" db:"status"`

	// Set only while status = active.
	PlanCode sql.NullString `json:"plan_code,omitempty" db:"plan_code"`
	PlanKind plan.Kind      `json:"plan_kind,omitempty" db:"plan_kind"`

	// Trial
	TrialEndDate time.Time `json:"trial_end_date" db:"trial_end_date"`

	// Recurring plan
	BillingCycleEndDate sql.NullTime       `json:"billing_cycle_end_date,omitempty" db:"billing_cycle_end_date"`
	NextPaymentDate     sql.NullTime       `json:"next_payment_date,omitempty" db:"next_payment_date"`
	SubscriptionEndDate sql.NullTime       `json:"subscription_end_date,omitempty" db:"subscription_end_date"`
	RenewalPeriod       plan.RenewalPeriod `json:"renewal_period,omitempty" db:"renewal_period"`
	AutoRenewal         bool               `json:"auto_renewal" db:"auto_renewal"`
	PaymentStatus       PaymentStatus      `json:"payment_status" db:"payment_status"`

	// Bundle plan
	TotalServicesContracted sql.NullInt32 `json:"total_services_contracted,omitempty" db:"total_services_contracted"`
	ServicesRemaining       sql.NullInt32 `json:"services_remaining,omitempty" db:"services_remaining"`
	BundleExpiryDate        sql.NullTime  `json:"bundle_expiry_date,omitempty" db:"bundle_expiry_date"`

	// Usage
	ServicesUsedMonth int            `json:"services_used_month" db:"services_used_month"`
	ServicesUsedTotal int            `json:"services_used_total" db:"services_used_total"`
	ActiveUserCount   int            `json:"active_user_count" db:"active_user_count"`
	UsageHistory      map[string]int `json:"usage_history,omitempty" db:"usage_history"`

	Sponsorship *Sponsorship `json:"sponsorship,omitempty" db:"sponsorship"`

	LastPaymentDate sql.NullTime `json:"last_payment_date,omitempty" db:"last_payment_date"`
	LastRenewalDate sql.NullTime `json:"last_renewal_date,omitempty" db:"last_renewal_date"`
	RenewalCount    int          `json:"renewal_count" db:"renewal_count"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// OnBundle reports whether the account currently runs under bundle
// semantics, returning the contracted/remaining counters.
func (a *Account) OnBundle() (contracted, remaining int, ok bool) {
	if a.Status != StatusActive || a.PlanKind != plan.KindBundle {
		return 0, 0, false
	}
	return int(a.TotalServicesContracted.Int32), int(a.ServicesRemaining.Int32), true
}

// OnRecurring reports whether the account currently runs under recurring
// subscription semantics.
func (a *Account) OnRecurring() bool {
	return a.Status == StatusActive && a.PlanKind == plan.KindRecurring
}

// InTrial reports whether the account is in its trial window at the given
// instant.
func (a *Account) InTrial(now time.Time) bool {
	return a.Status == StatusTrial && now.Before(a.TrialEndDate)
}

// MonthKey formats the usage-history key for the given instant.
func MonthKey(t time.Time) string {
	return t.Format("2006-01")
}
