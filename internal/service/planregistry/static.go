// internal/service/planregistry/static.go
package planregistry

import (
	"database/sql"

	"lubripro-service/internal/domain/plan"
)

// Built-in catalogue served when the dynamic one is unavailable. Mirrors
// the seeded defaults in migrations; keep the two in sync.
var defaultPlans = []plan.Plan{
	{
		Code:               "starter",
		Name:               "Starter",
		Kind:               plan.KindRecurring,
		PriceMonthly:       sql.NullFloat64{Float64: 29.99, Valid: true},
		PriceSemiannual:    sql.NullFloat64{Float64: 149.99, Valid: true},
		MaxUsers:           3,
		MaxMonthlyServices: sql.NullInt32{Int32: 150, Valid: true},
		IsDefault:          true,
		Active:             true,
	},
	{
		Code:            "pro",
		Name:            "Pro",
		Kind:            plan.KindRecurring,
		PriceMonthly:    sql.NullFloat64{Float64: 59.99, Valid: true},
		PriceSemiannual: sql.NullFloat64{Float64: 299.99, Valid: true},
		MaxUsers:        10,
		// No monthly quota: unlimited services.
		IsDefault: true,
		Active:    true,
	},
	{
		Code:           "bundle-100",
		Name:           "Bundle 100",
		Kind:           plan.KindBundle,
		BundlePrice:    sql.NullFloat64{Float64: 199.99, Valid: true},
		MaxUsers:       5,
		TotalServices:  sql.NullInt32{Int32: 100, Valid: true},
		ValidityMonths: sql.NullInt32{Int32: 12, Valid: true},
		IsDefault:      true,
		Active:         true,
	},
	// Marker plans backing coupon-sponsored memberships; the account itself
	// carries the contracted counters.
	{
		Code:      "sponsored-unlimited",
		Name:      "Sponsored Membership",
		Kind:      plan.KindRecurring,
		MaxUsers:  5,
		IsDefault: true,
		Active:    true,
	},
	{
		Code:           "sponsored-bundle",
		Name:           "Sponsored Bundle",
		Kind:           plan.KindBundle,
		MaxUsers:       5,
		ValidityMonths: sql.NullInt32{Int32: 12, Valid: true},
		IsDefault:      true,
		Active:         true,
	},
}
