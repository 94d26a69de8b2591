// internal/domain/payment/entity.go
package payment

import (
	"database/sql"
	"time"
)

const MethodCoupon = "coupon"

// Payment is an append-only ledger entry attached to an account.
// Coupon-funded activations record a zero-amount entry with MethodCoupon;
// actual payment capture happens outside this service.
type Payment struct {
	ID        int64          `json:"id" db:"id"`
	AccountID int64          `json:"account_id" db:"account_id"`
	Amount    float64        `json:"amount" db:"amount"`
	Method    string         `json:"method" db:"method"`
	Reference sql.NullString `json:"reference,omitempty" db:"reference"`
	PaidAt    time.Time      `json:"paid_at" db:"paid_at"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
}
