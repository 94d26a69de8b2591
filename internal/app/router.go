// internal/app/router.go
package app

import (
	accountHandler "lubripro-service/internal/handlers/account"
	couponHandler "lubripro-service/internal/handlers/coupon"
	distributorHandler "lubripro-service/internal/handlers/distributor"
	planHandler "lubripro-service/internal/handlers/plan"
	renewalHandler "lubripro-service/internal/handlers/renewal"
	"lubripro-service/internal/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Handlers struct {
	AccountHandler     *accountHandler.AccountHandler
	PlanHandler        *planHandler.PlanHandler
	CouponHandler      *couponHandler.CouponHandler
	DistributorHandler *distributorHandler.DistributorHandler
	RenewalHandler     *renewalHandler.RenewalHandler
	AuthMiddleware     *middleware.AuthMiddleware
}

func SetupRouter(r *gin.Engine, logger *zap.Logger, h *Handlers) {
	api := r.Group("/api/v1")

	// ==================== Health Check ====================
	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "version": "1.0.0"})
	})

	// ==================== Accounts ====================
	accounts := api.Group("/accounts")
	accounts.Use(h.AuthMiddleware.Auth())
	{
		accounts.POST("", h.AccountHandler.CreateAccount)
		accounts.GET("/:id", h.AccountHandler.GetAccount)

		// Usage metering
		accounts.GET("/:id/usage", h.AccountHandler.GetUsage)
		accounts.POST("/:id/services", h.AccountHandler.ConsumeService)
		accounts.POST("/:id/users", h.AccountHandler.AddUser)
		accounts.DELETE("/:id/users", h.AccountHandler.RemoveUser)

		// Lifecycle
		accounts.PUT("/:id/activate", h.AccountHandler.Activate)
		accounts.PUT("/:id/deactivate", h.AccountHandler.Deactivate)

		// Payments and history
		accounts.POST("/:id/payments", h.AccountHandler.RecordPayment)
		accounts.GET("/:id/payments", h.AccountHandler.ListPayments)
		accounts.GET("/:id/history", h.AccountHandler.ListHistory)
	}

	// ==================== Plans ====================
	plans := api.Group("/plans")
	plans.Use(h.AuthMiddleware.Auth())
	{
		plans.GET("", h.PlanHandler.ListPlans)
		plans.GET("/:code", h.PlanHandler.GetPlan)
	}

	// ==================== Coupons ====================
	coupons := api.Group("/coupons")
	coupons.Use(h.AuthMiddleware.Auth())
	{
		coupons.POST("", h.CouponHandler.Issue)
		coupons.GET("", h.CouponHandler.List)
		coupons.GET("/:code/validate", h.CouponHandler.Validate)
		coupons.POST("/redeem", h.CouponHandler.Redeem)
	}

	// ==================== Distributors ====================
	distributors := api.Group("/distributors")
	distributors.Use(h.AuthMiddleware.Auth())
	{
		distributors.GET("/:id", h.DistributorHandler.Get)
		distributors.POST("/:id/credits", h.DistributorHandler.PurchaseCredits)
	}

	// ==================== ADMIN ROUTES ====================
	admin := api.Group("/admin")
	admin.Use(h.AuthMiddleware.Auth(), h.AuthMiddleware.RequireRole("admin"))
	{
		// Account administration
		adminAccounts := admin.Group("/accounts")
		{
			adminAccounts.PUT("/:id/extend-trial", h.AccountHandler.ExtendTrial)
			adminAccounts.PUT("/:id/reset-counter", h.AccountHandler.ResetCounter)
		}

		// Plan catalogue management
		adminPlans := admin.Group("/plans")
		{
			adminPlans.POST("", h.PlanHandler.CreatePlan)
			adminPlans.PUT("/:code", h.PlanHandler.UpdatePlan)
			adminPlans.PUT("/:code/deactivate", h.PlanHandler.DeactivatePlan)
			adminPlans.DELETE("/:code", h.PlanHandler.DeletePlan)
			adminPlans.POST("/cache/invalidate", h.PlanHandler.InvalidateCache)
		}

		// Coupon administration
		adminCoupons := admin.Group("/coupons")
		{
			adminCoupons.DELETE("/:code", h.CouponHandler.Delete)
		}

		// Distributor management
		adminDistributors := admin.Group("/distributors")
		{
			adminDistributors.POST("", h.DistributorHandler.Create)
			adminDistributors.PUT("/:id/recompute-stats", h.DistributorHandler.RecomputeStats)
		}

		// Batch processing
		renewals := admin.Group("/renewals")
		{
			renewals.POST("/run", h.RenewalHandler.Run)
			renewals.POST("/sweep-coupons", h.RenewalHandler.SweepCoupons)
		}
	}
}
