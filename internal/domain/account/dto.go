// internal/domain/account/dto.go
package account

import "lubripro-service/internal/domain/plan"

type CreateAccountRequest struct {
	Name      string `json:"name" binding:"required,max=255"`
	TrialDays int    `json:"trial_days" binding:"omitempty,min=1,max=90"`
}

type ActivateRequest struct {
	PlanCode      string             `json:"plan_code" binding:"required"`
	RenewalPeriod plan.RenewalPeriod `json:"renewal_period" binding:"omitempty,oneof=monthly semiannual"`
	AutoRenewal   bool               `json:"auto_renewal"`
	// When a payment accompanies activation the cycle starts as paid.
	PaymentAmount    *float64 `json:"payment_amount" binding:"omitempty,min=0"`
	PaymentMethod    string   `json:"payment_method" binding:"omitempty,max=50"`
	PaymentReference string   `json:"payment_reference" binding:"omitempty,max=100"`
}

type DeactivateRequest struct {
	Reason string `json:"reason" binding:"required,max=255"`
}

type ExtendTrialRequest struct {
	Days int `json:"days" binding:"required,min=1,max=365"`
}

type RecordPaymentRequest struct {
	Amount    float64 `json:"amount" binding:"min=0"`
	Method    string  `json:"method" binding:"required,max=50"`
	Reference string  `json:"reference" binding:"omitempty,max=100"`
}

type UsageResponse struct {
	Allowed   bool   `json:"allowed"`
	Reason    string `json:"reason,omitempty"`
	Remaining int    `json:"remaining"`
	WarnLevel string `json:"warn_level"`
}
