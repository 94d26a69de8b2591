// internal/domain/distributor/dto.go
package distributor

type PurchaseCreditsRequest struct {
	Quantity  int    `json:"quantity" binding:"required,min=1,max=10000"`
	Method    string `json:"method" binding:"required,max=50"`
	Reference string `json:"reference" binding:"omitempty,max=100"`
}

type PurchaseCreditsResponse struct {
	Distributor *Distributor `json:"distributor"`
	UnitPrice   float64      `json:"unit_price"`
	TotalPrice  float64      `json:"total_price"`
}
