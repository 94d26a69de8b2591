// internal/service/planregistry/mapping.go
package planregistry

import (
	"database/sql"

	"lubripro-service/internal/domain/plan"
)

func planFromCreateRequest(req *plan.CreatePlanRequest) *plan.Plan {
	p := &plan.Plan{
		Code:      req.Code,
		Name:      req.Name,
		Kind:      req.Kind,
		MaxUsers:  req.MaxUsers,
		IsDefault: req.IsDefault,
		Active:    true,
	}

	if req.Description != "" {
		p.Description = sql.NullString{String: req.Description, Valid: true}
	}
	if req.PriceMonthly != nil {
		p.PriceMonthly = sql.NullFloat64{Float64: *req.PriceMonthly, Valid: true}
	}
	if req.PriceSemiannual != nil {
		p.PriceSemiannual = sql.NullFloat64{Float64: *req.PriceSemiannual, Valid: true}
	}
	if req.BundlePrice != nil {
		p.BundlePrice = sql.NullFloat64{Float64: *req.BundlePrice, Valid: true}
	}
	if req.MaxMonthlyServices != nil {
		p.MaxMonthlyServices = sql.NullInt32{Int32: *req.MaxMonthlyServices, Valid: true}
	}
	if req.TotalServices != nil {
		p.TotalServices = sql.NullInt32{Int32: *req.TotalServices, Valid: true}
	}
	if req.ValidityMonths != nil {
		p.ValidityMonths = sql.NullInt32{Int32: *req.ValidityMonths, Valid: true}
	}

	return p
}

func applyPlanUpdate(p *plan.Plan, req *plan.UpdatePlanRequest) {
	if req.Name != nil {
		p.Name = *req.Name
	}
	if req.Description != nil {
		p.Description = sql.NullString{String: *req.Description, Valid: *req.Description != ""}
	}
	if req.PriceMonthly != nil {
		p.PriceMonthly = sql.NullFloat64{Float64: *req.PriceMonthly, Valid: true}
	}
	if req.PriceSemiannual != nil {
		p.PriceSemiannual = sql.NullFloat64{Float64: *req.PriceSemiannual, Valid: true}
	}
	if req.BundlePrice != nil {
		p.BundlePrice = sql.NullFloat64{Float64: *req.BundlePrice, Valid: true}
	}
	if req.MaxUsers != nil {
		p.MaxUsers = *req.MaxUsers
	}
	if req.MaxMonthlyServices != nil {
		p.MaxMonthlyServices = sql.NullInt32{Int32: *req.MaxMonthlyServices, Valid: true}
	}
	if req.TotalServices != nil {
		p.TotalServices = sql.NullInt32{Int32: *req.TotalServices, Valid: true}
	}
	if req.ValidityMonths != nil {
		p.ValidityMonths = sql.NullInt32{Int32: *req.ValidityMonths, Valid: true}
	}
	if req.Active != nil {
		p.Active = *req.Active
	}
}
