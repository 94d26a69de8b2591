// internal/handlers/plan/plan_handler.go
package plan

import (
	"net/http"

	"lubripro-service/internal/domain/plan"
	"lubripro-service/internal/middleware"
	"lubripro-service/internal/pkg/response"
	"lubripro-service/internal/service/planregistry"

	"github.com/gin-gonic/gin"
)

type PlanHandler struct {
	registry *planregistry.Registry
}

func NewPlanHandler(registry *planregistry.Registry) *PlanHandler {
	return &PlanHandler{registry: registry}
}

// ListPlans retrieves catalogue entries with filters.
func (h *PlanHandler) ListPlans(c *gin.Context) {
	var filters plan.PlanListFilters
	if err := c.ShouldBindQuery(&filters); err != nil {
		response.ValidationError(c, "invalid query parameters", err)
		return
	}

	result, err := h.registry.ListPlans(c.Request.Context(), &filters)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "plans retrieved", result)
}

// GetPlan resolves a single plan by code.
func (h *PlanHandler) GetPlan(c *gin.Context) {
	code := c.Param("code")
	if code == "" {
		response.ValidationError(c, "plan code is required", nil)
		return
	}

	p, err := h.registry.Resolve(c.Request.Context(), code)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "plan retrieved", p)
}

// ========== Admin Endpoints ==========

func (h *PlanHandler) CreatePlan(c *gin.Context) {
	var req plan.CreatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request body", err)
		return
	}

	p, err := h.registry.CreatePlan(c.Request.Context(), &req, middleware.GetActorID(c))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, "plan created", p)
}

func (h *PlanHandler) UpdatePlan(c *gin.Context) {
	code := c.Param("code")

	var req plan.UpdatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request body", err)
		return
	}

	p, err := h.registry.UpdatePlan(c.Request.Context(), code, &req, middleware.GetActorID(c))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "plan updated", p)
}

// DeactivatePlan hides the plan from new activations without touching
// accounts already on it.
func (h *PlanHandler) DeactivatePlan(c *gin.Context) {
	code := c.Param("code")

	if err := h.registry.DeactivatePlan(c.Request.Context(), code, middleware.GetActorID(c)); err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "plan deactivated", nil)
}

func (h *PlanHandler) DeletePlan(c *gin.Context) {
	code := c.Param("code")

	if err := h.registry.DeletePlan(c.Request.Context(), code, middleware.GetActorID(c)); err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "plan deleted", nil)
}

// InvalidateCache forces the next plan resolution to bypass the cache.
func (h *PlanHandler) InvalidateCache(c *gin.Context) {
	h.registry.Invalidate(c.Request.Context())
	response.Success(c, http.StatusOK, "plan cache invalidated", nil)
}
