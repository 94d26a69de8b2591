// internal/handlers/account/account_handler.go
package account

import (
	"net/http"
	"strconv"

	"lubripro-service/internal/domain/account"
	"lubripro-service/internal/middleware"
	"lubripro-service/internal/pkg/response"
	"lubripro-service/internal/service/entitlement"
	"lubripro-service/internal/service/usage"

	"github.com/gin-gonic/gin"
)

type AccountHandler struct {
	entitlements *entitlement.Service
	meter        *usage.Meter
}

func NewAccountHandler(entitlements *entitlement.Service, meter *usage.Meter) *AccountHandler {
	return &AccountHandler{
		entitlements: entitlements,
		meter:        meter,
	}
}

// CreateAccount registers a new tenant in trial state.
func (h *AccountHandler) CreateAccount(c *gin.Context) {
	var req account.CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request body", err)
		return
	}

	a, err := h.entitlements.CreateAccount(c.Request.Context(), &req)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, "account created", a)
}

// GetAccount retrieves an account.
func (h *AccountHandler) GetAccount(c *gin.Context) {
	id, ok := accountID(c)
	if !ok {
		return
	}

	a, err := h.entitlements.GetAccount(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "account retrieved", a)
}

// GetUsage answers whether one more service is allowed, with the remaining
// balance and a display-only warning level.
func (h *AccountHandler) GetUsage(c *gin.Context) {
	id, ok := accountID(c)
	if !ok {
		return
	}

	decision, err := h.meter.Check(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "usage retrieved", account.UsageResponse{
		Allowed:   decision.Allowed,
		Reason:    decision.Reason,
		Remaining: decision.Remaining,
		WarnLevel: usage.WarnLevel(decision.Remaining),
	})
}

// ConsumeService records one consumed service.
func (h *AccountHandler) ConsumeService(c *gin.Context) {
	id, ok := accountID(c)
	if !ok {
		return
	}

	decision, err := h.meter.ConsumeOne(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "service recorded", account.UsageResponse{
		Allowed:   decision.Allowed,
		Reason:    decision.Reason,
		Remaining: decision.Remaining,
		WarnLevel: usage.WarnLevel(decision.Remaining),
	})
}

// AddUser registers one more active user against the plan's seat cap.
func (h *AccountHandler) AddUser(c *gin.Context) {
	id, ok := accountID(c)
	if !ok {
		return
	}

	if err := h.meter.AddUser(c.Request.Context(), id); err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "user added", nil)
}

// RemoveUser unregisters an active user.
func (h *AccountHandler) RemoveUser(c *gin.Context) {
	id, ok := accountID(c)
	if !ok {
		return
	}

	if err := h.meter.RemoveUser(c.Request.Context(), id); err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "user removed", nil)
}

// Activate puts the account on a plan.
func (h *AccountHandler) Activate(c *gin.Context) {
	id, ok := accountID(c)
	if !ok {
		return
	}

	var req account.ActivateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request body", err)
		return
	}

	a, err := h.entitlements.Activate(c.Request.Context(), id, &req, middleware.GetActorID(c))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "account activated", a)
}

// Deactivate turns the account off.
func (h *AccountHandler) Deactivate(c *gin.Context) {
	id, ok := accountID(c)
	if !ok {
		return
	}

	var req account.DeactivateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request body", err)
		return
	}

	a, err := h.entitlements.Deactivate(c.Request.Context(), id, req.Reason, middleware.GetActorID(c))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "account deactivated", a)
}

// ExtendTrial adds days to the trial window.
func (h *AccountHandler) ExtendTrial(c *gin.Context) {
	id, ok := accountID(c)
	if !ok {
		return
	}

	var req account.ExtendTrialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request body", err)
		return
	}

	a, err := h.entitlements.ExtendTrial(c.Request.Context(), id, req.Days, middleware.GetActorID(c))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "trial extended", a)
}

// RecordPayment appends a payment ledger entry.
func (h *AccountHandler) RecordPayment(c *gin.Context) {
	id, ok := accountID(c)
	if !ok {
		return
	}

	var req account.RecordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request body", err)
		return
	}

	p, err := h.entitlements.RecordPayment(c.Request.Context(), id, &req, middleware.GetActorID(c))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, "payment recorded", p)
}

// ResetCounter zeroes the monthly usage counter; administrative.
func (h *AccountHandler) ResetCounter(c *gin.Context) {
	id, ok := accountID(c)
	if !ok {
		return
	}

	if err := h.entitlements.ResetMonthlyCounter(c.Request.Context(), id, middleware.GetActorID(c)); err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "counter reset", nil)
}

// ListPayments returns the account's payment ledger.
func (h *AccountHandler) ListPayments(c *gin.Context) {
	id, ok := accountID(c)
	if !ok {
		return
	}

	payments, err := h.entitlements.ListPayments(c.Request.Context(), id, queryLimit(c))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "payments retrieved", payments)
}

// ListHistory returns the account's billing events.
func (h *AccountHandler) ListHistory(c *gin.Context) {
	id, ok := accountID(c)
	if !ok {
		return
	}

	entries, err := h.entitlements.ListHistory(c.Request.Context(), id, queryLimit(c))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "history retrieved", entries)
}

func accountID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ValidationError(c, "invalid account ID", err)
		return 0, false
	}
	return id, true
}

func queryLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 || limit > 500 {
		return 50
	}
	return limit
}
