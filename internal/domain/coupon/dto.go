// internal/domain/coupon/dto.go
package coupon

import "time"

type IssueCouponRequest struct {
	DistributorID           *int64   `json:"distributor_id" binding:"omitempty,min=1"`
	MembershipMonths        int      `json:"membership_months" binding:"required,min=1,max=36"`
	UnlimitedServices       bool     `json:"unlimited_services"`
	TotalServicesContracted int      `json:"total_services_contracted" binding:"omitempty,min=1"`
	ExtraFeatures           []string `json:"extra_features"`
	ValidityDays            int      `json:"validity_days" binding:"omitempty,min=1,max=730"`
}

type RedeemCouponRequest struct {
	Code      string `json:"code" binding:"required,max=50"`
	AccountID int64  `json:"account_id" binding:"required,min=1"`
}

// ValidationResult is a typed probe result, never an error: callers
// routinely ask "can this code be redeemed" before attempting it.
type ValidationResult struct {
	Valid    bool      `json:"valid"`
	Message  string    `json:"message"`
	Benefits *Benefits `json:"benefits,omitempty"`
}

type CouponListFilters struct {
	DistributorID *int64  `form:"distributor_id"`
	Status        *Status `form:"status"`
	Page          int     `form:"page" binding:"min=0"`
	PageSize      int     `form:"page_size" binding:"min=0,max=100"`
}

type CouponListResponse struct {
	Coupons  []Coupon `json:"coupons"`
	Total    int64    `json:"total"`
	Page     int      `json:"page"`
	PageSize int      `json:"page_size"`
}

type RedeemResult struct {
	Code        string    `json:"code"`
	AccountID   int64     `json:"account_id"`
	ActiveUntil time.Time `json:"active_until"`
}
