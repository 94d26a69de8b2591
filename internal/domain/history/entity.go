// internal/domain/history/entity.go
package history

import (
	"database/sql"
	"time"
)

type Action string

const (
	ActionRenewed        Action = "renewed"
	ActionExpired        Action = "expired"
	ActionManualReset    Action = "manual_reset"
	ActionTrialExtension Action = "trial_extension"
	ActionActivation     Action = "activation"
	ActionDeactivation   Action = "deactivation"
	ActionCouponRedeemed Action = "coupon_redeemed"
	ActionPlanUpdate     Action = "plan_update"
	ActionBatchRun       Action = "batch_run"
)

// Entry is an append-only audit record of a billing decision. Batch-run
// aggregates carry a NULL account id.
type Entry struct {
	ID        int64                  `json:"id" db:"id"`
	AccountID sql.NullInt64          `json:"account_id,omitempty" db:"account_id"`
	Action    Action                 `json:"action" db:"action"`
	Details   map[string]interface{} `json:"details,omitempty" db:"details"`
	Actor     string                 `json:"actor" db:"actor"`
	CreatedAt time.Time              `json:"created_at" db:"created_at"`
}
