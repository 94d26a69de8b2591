// internal/handlers/coupon/coupon_handler.go
package coupon

import (
	"net/http"

	"lubripro-service/internal/domain/coupon"
	"lubripro-service/internal/middleware"
	"lubripro-service/internal/pkg/response"
	couponservice "lubripro-service/internal/service/coupon"

	"github.com/gin-gonic/gin"
)

type CouponHandler struct {
	coupons *couponservice.Service
}

func NewCouponHandler(coupons *couponservice.Service) *CouponHandler {
	return &CouponHandler{coupons: coupons}
}

// Issue mints a coupon. Distributor issuance spends a credit; admins issue
// for free.
func (h *CouponHandler) Issue(c *gin.Context) {
	var req coupon.IssueCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request body", err)
		return
	}

	issued, err := h.coupons.Issue(c.Request.Context(), &req, middleware.GetActorID(c), middleware.IsAdmin(c))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, "coupon issued", issued)
}

// Validate probes a code. Always 200: the outcome lives in the payload
// because a refused code is an answer, not an error.
func (h *CouponHandler) Validate(c *gin.Context) {
	code := c.Param("code")
	if code == "" {
		response.ValidationError(c, "coupon code is required", nil)
		return
	}

	result, err := h.coupons.Validate(c.Request.Context(), code)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "coupon validated", result)
}

// Redeem applies a coupon to an account.
func (h *CouponHandler) Redeem(c *gin.Context) {
	var req coupon.RedeemCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request body", err)
		return
	}

	result, err := h.coupons.Redeem(c.Request.Context(), req.Code, req.AccountID, middleware.GetActorID(c))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "coupon redeemed", result)
}

// List retrieves coupons for tables and dashboards.
func (h *CouponHandler) List(c *gin.Context) {
	var filters coupon.CouponListFilters
	if err := c.ShouldBindQuery(&filters); err != nil {
		response.ValidationError(c, "invalid query parameters", err)
		return
	}

	result, err := h.coupons.List(c.Request.Context(), &filters)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "coupons retrieved", result)
}

// Delete removes a coupon permanently; administrative.
func (h *CouponHandler) Delete(c *gin.Context) {
	code := c.Param("code")

	if err := h.coupons.Delete(c.Request.Context(), code, middleware.GetActorID(c)); err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "coupon deleted", nil)
}
