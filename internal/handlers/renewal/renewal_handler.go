// internal/handlers/renewal/renewal_handler.go
package renewal

import (
	"net/http"
	"time"

	"lubripro-service/internal/pkg/response"
	couponservice "lubripro-service/internal/service/coupon"
	renewalservice "lubripro-service/internal/service/renewal"

	"github.com/gin-gonic/gin"
)

type RenewalHandler struct {
	processor *renewalservice.Processor
	coupons   *couponservice.Service
}

func NewRenewalHandler(processor *renewalservice.Processor, coupons *couponservice.Service) *RenewalHandler {
	return &RenewalHandler{
		processor: processor,
		coupons:   coupons,
	}
}

// Run triggers the renewal/expiration batch on demand.
func (h *RenewalHandler) Run(c *gin.Context) {
	result, err := h.processor.ProcessDue(c.Request.Context(), time.Now())
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "renewal batch finished", result)
}

// SweepCoupons expires every overdue coupon.
func (h *RenewalHandler) SweepCoupons(c *gin.Context) {
	expired, err := h.coupons.Sweep(c.Request.Context())
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "coupon sweep finished", gin.H{"expired": expired})
}
