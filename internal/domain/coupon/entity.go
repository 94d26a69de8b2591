// internal/domain/coupon/entity.go
package coupon

import (
	"database/sql"
	"time"
)

type Status string

const (
	StatusActive  Status = "active"
	StatusUsed    Status = "used"
	StatusExpired Status = "expired"
)

// Benefits describes what redeeming a coupon grants. Exactly one of
// UnlimitedServices / TotalServicesContracted > 0 applies; when neither is
// set the redeemed account gets the default unlimited-during-membership
// mode.
type Benefits struct {
	MembershipMonths        int      `json:"membership_months"`
	UnlimitedServices       bool     `json:"unlimited_services"`
	TotalServicesContracted int      `json:"total_services_contracted"`
	ExtraFeatures           []string `json:"extra_features,omitempty"`
}

// UsedBy records the redemption; set exactly once.
type UsedBy struct {
	AccountID   int64     `json:"account_id"`
	AccountName string    `json:"account_name"`
	UsedAt      time.Time `json:"used_at"`
	Actor       string    `json:"actor"`
}

// Coupon is a single-use code minted against a distributor's credit balance
// (or by an administrator at no credit cost). Used/expired are terminal
// states; coupons are retained for audit after use.
type Coupon struct {
	ID            int64         `json:"id" db:"id"`
	Code          string        `json:"code" db:"code"`
	DistributorID sql.NullInt64 `json:"distributor_id,omitempty" db:"distributor_id"`

	Status     Status    `json:"status" db:"status"`
	ValidFrom  time.Time `json:"valid_from" db:"valid_from"`
	ValidUntil time.Time `json:"valid_until" db:"valid_until"`

	Benefits Benefits `json:"benefits" db:"benefits"`
	UsedBy   *UsedBy  `json:"used_by,omitempty" db:"used_by"`

	CreatedBy string    `json:"created_by" db:"created_by"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// TimeExpired reports whether an active coupon is past its validity window.
func (c *Coupon) TimeExpired(now time.Time) bool {
	return c.Status == StatusActive && now.After(c.ValidUntil)
}

// Redeemable reports whether the coupon can still be redeemed at now.
func (c *Coupon) Redeemable(now time.Time) bool {
	return c.Status == StatusActive && !now.Before(c.ValidFrom) && !now.After(c.ValidUntil)
}
