// internal/domain/plan/entity.go
package plan

import (
	"database/sql"
	"time"
)

type Kind string

const (
	KindRecurring Kind = "recurring"
	KindBundle    Kind = "bundle"
)

type RenewalPeriod string

const (
	RenewalMonthly    RenewalPeriod = "monthly"
	RenewalSemiannual RenewalPeriod = "semiannual"
)

// Plan is a catalogue entry. Recurring plans bill per period against a
// monthly service quota (NULL quota = unlimited); bundle plans are a
// one-time purchase of a fixed service count valid for a bounded number
// of months and never auto-renew.
type Plan struct {
	ID          int64          `json:"id" db:"id"`
	Code        string         `json:"code" db:"code"`
	Name        string         `json:"name" db:"name"`
	Description sql.NullString `json:"description,omitempty" db:"description"`

	Kind Kind `json:"kind" db:"kind"`

	// Pricing
	PriceMonthly    sql.NullFloat64 `json:"price_monthly,omitempty" db:"price_monthly"`
	PriceSemiannual sql.NullFloat64 `json:"price_semiannual,omitempty" db:"price_semiannual"`
	BundlePrice     sql.NullFloat64 `json:"bundle_price,omitempty" db:"bundle_price"`

	// Limits
	MaxUsers           int           `json:"max_users" db:"max_users"`
	MaxMonthlyServices sql.NullInt32 `json:"max_monthly_services,omitempty" db:"max_monthly_services"`

	// Bundle terms
	TotalServices  sql.NullInt32 `json:"total_services,omitempty" db:"total_services"`
	ValidityMonths sql.NullInt32 `json:"validity_months,omitempty" db:"validity_months"`

	IsDefault bool `json:"is_default" db:"is_default"`
	Active    bool `json:"active" db:"active"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// UnlimitedMonthly reports whether a recurring plan has no monthly service
// quota. Call sites must use this rather than comparing sentinels.
func (p *Plan) UnlimitedMonthly() bool {
	return p.Kind == KindRecurring && !p.MaxMonthlyServices.Valid
}

// PriceFor returns the recurring price for the given renewal period.
func (p *Plan) PriceFor(period RenewalPeriod) float64 {
	switch period {
	case RenewalSemiannual:
		if p.PriceSemiannual.Valid {
			return p.PriceSemiannual.Float64
		}
	default:
		if p.PriceMonthly.Valid {
			return p.PriceMonthly.Float64
		}
	}
	return 0
}

// PeriodMonths maps a renewal period to its length in months.
func PeriodMonths(period RenewalPeriod) int {
	if period == RenewalSemiannual {
		return 6
	}
	return 1
}
