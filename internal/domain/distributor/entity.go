// internal/domain/distributor/entity.go
package distributor

import (
	"database/sql"
	"time"
)

// Credits gate coupon issuance: one credit mints one coupon.
// Invariant: Available == Purchased - Used and Available >= 0.
type Credits struct {
	Purchased int `json:"purchased" db:"credits_purchased"`
	Used      int `json:"used" db:"credits_used"`
	Available int `json:"available" db:"credits_available"`
}

// Stats are derived counters, recomputable from the coupon collection.
// The coupon set is the source of truth; these exist for dashboards only.
type Stats struct {
	TotalCouponsGenerated int `json:"total_coupons_generated" db:"total_coupons_generated"`
	TotalCouponsUsed      int `json:"total_coupons_used" db:"total_coupons_used"`
	TotalCouponsExpired   int `json:"total_coupons_expired" db:"total_coupons_expired"`
	ActiveAccounts        int `json:"active_accounts" db:"active_accounts"`
}

type Distributor struct {
	ID   int64  `json:"id" db:"id"`
	Name string `json:"name" db:"name"`

	Credits Credits `json:"credits"`
	Stats   Stats   `json:"stats"`

	LastPurchase sql.NullTime `json:"last_purchase,omitempty" db:"last_purchase"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// CreditPurchase is an append-only record of a credit top-up.
type CreditPurchase struct {
	ID            int64     `json:"id" db:"id"`
	DistributorID int64     `json:"distributor_id" db:"distributor_id"`
	Quantity      int       `json:"quantity" db:"quantity"`
	UnitPrice     float64   `json:"unit_price" db:"unit_price"`
	TotalPrice    float64   `json:"total_price" db:"total_price"`
	Method        string    `json:"method" db:"method"`
	Reference     string    `json:"reference" db:"reference"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}
