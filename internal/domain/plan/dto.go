// internal/domain/plan/dto.go
package plan

type CreatePlanRequest struct {
	Code        string `json:"code" binding:"required,max=50"`
	Name        string `json:"name" binding:"required,max=255"`
	Description string `json:"description"`

	Kind Kind `json:"kind" binding:"required,oneof=recurring bundle"`

	PriceMonthly    *float64 `json:"price_monthly" binding:"omitempty,min=0"`
	PriceSemiannual *float64 `json:"price_semiannual" binding:"omitempty,min=0"`
	BundlePrice     *float64 `json:"bundle_price" binding:"omitempty,min=0"`

	MaxUsers           int    `json:"max_users" binding:"required,min=1"`
	MaxMonthlyServices *int32 `json:"max_monthly_services" binding:"omitempty,min=1"`

	TotalServices  *int32 `json:"total_services" binding:"omitempty,min=1"`
	ValidityMonths *int32 `json:"validity_months" binding:"omitempty,min=1"`

	IsDefault bool `json:"is_default"`
}

type UpdatePlanRequest struct {
	Name        *string `json:"name" binding:"omitempty,max=255"`
	Description *string `json:"description"`

	PriceMonthly    *float64 `json:"price_monthly" binding:"omitempty,min=0"`
	PriceSemiannual *float64 `json:"price_semiannual" binding:"omitempty,min=0"`
	BundlePrice     *float64 `json:"bundle_price" binding:"omitempty,min=0"`

	MaxUsers           *int   `json:"max_users" binding:"omitempty,min=1"`
	MaxMonthlyServices *int32 `json:"max_monthly_services" binding:"omitempty,min=1"`

	TotalServices  *int32 `json:"total_services" binding:"omitempty,min=1"`
	ValidityMonths *int32 `json:"validity_months" binding:"omitempty,min=1"`

	Active *bool `json:"active"`
}

type PlanListFilters struct {
	Kind      *Kind  `form:"kind"`
	Active    *bool  `form:"active"`
	Search    string `form:"search"`
	Page      int    `form:"page" binding:"min=0"`
	PageSize  int    `form:"page_size" binding:"min=0,max=100"`
	SortBy    string `form:"sort_by"`
	SortOrder string `form:"sort_order" binding:"omitempty,oneof=asc desc"`
}

type PlanListResponse struct {
	Plans      []Plan `json:"plans"`
	Total      int64  `json:"total"`
	Page       int    `json:"page"`
	PageSize   int    `json:"page_size"`
	TotalPages int    `json:"total_pages"`
}
