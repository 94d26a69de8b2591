// internal/handlers/distributor/distributor_handler.go
package distributor

import (
	"net/http"
	"strconv"

	"lubripro-service/internal/domain/distributor"
	"lubripro-service/internal/pkg/response"
	distservice "lubripro-service/internal/service/distributor"

	"github.com/gin-gonic/gin"
)

type DistributorHandler struct {
	distributors *distservice.Service
}

func NewDistributorHandler(distributors *distservice.Service) *DistributorHandler {
	return &DistributorHandler{distributors: distributors}
}

type createDistributorRequest struct {
	Name string `json:"name" binding:"required,max=255"`
}

// Create registers a distributor; administrative.
func (h *DistributorHandler) Create(c *gin.Context) {
	var req createDistributorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request body", err)
		return
	}

	d, err := h.distributors.Create(c.Request.Context(), req.Name)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, "distributor created", d)
}

// Get retrieves a distributor with its credit balance and stats.
func (h *DistributorHandler) Get(c *gin.Context) {
	id, ok := distributorID(c)
	if !ok {
		return
	}

	d, err := h.distributors.Get(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "distributor retrieved", d)
}

// PurchaseCredits tops up the credit balance.
func (h *DistributorHandler) PurchaseCredits(c *gin.Context) {
	id, ok := distributorID(c)
	if !ok {
		return
	}

	var req distributor.PurchaseCreditsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request body", err)
		return
	}

	result, err := h.distributors.PurchaseCredits(c.Request.Context(), id, &req)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "credits purchased", result)
}

// RecomputeStats rebuilds derived counters from the coupon collection.
func (h *DistributorHandler) RecomputeStats(c *gin.Context) {
	id, ok := distributorID(c)
	if !ok {
		return
	}

	d, err := h.distributors.RecomputeStats(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "stats recomputed", d)
}

func distributorID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ValidationError(c, "invalid distributor ID", err)
		return 0, false
	}
	return id, true
}
