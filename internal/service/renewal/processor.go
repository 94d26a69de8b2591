// internal/service/renewal/processor.go
package renewal

import (
	"context"
	"time"

	"lubripro-service/internal/domain/account"
	"lubripro-service/internal/domain/history"

	"go.uber.org/zap"
)

// ItemError records one account's failure without aborting the scan.
type ItemError struct {
	AccountID int64  `json:"account_id"`
	Error     string `json:"error"`
}

// Result aggregates one batch run.
type Result struct {
	ProcessedCount int         `json:"processed_count"`
	RenewedCount   int         `json:"renewed_count"`
	ExpiredCount   int         `json:"expired_count"`
	ErrorCount     int         `json:"error_count"`
	Errors         []ItemError `json:"errors,omitempty"`
	RanAt          time.Time   `json:"ran_at"`
}

type AccountSource interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]account.Account, error)
}

// Entitlements are the single-account renew/expire primitives; the batch
// must apply the exact same rules as manual actions.
type Entitlements interface {
	RenewAccount(ctx context.Context, accountID int64, now time.Time, actor string) error
	ExpireAccount(ctx context.Context, accountID int64, now time.Time, actor string) error
}

type HistoryRepo interface {
	Create(ctx context.Context, e *history.Entry) error
}

// Processor scans accounts whose billing cycle has elapsed and either
// renews or expires them. Each account runs in its own transaction, so one
// failure never blocks the rest of the scan.
type Processor struct {
	accounts     AccountSource
	entitlements Entitlements
	history      HistoryRepo
	logger       *zap.Logger
	batchLimit   int
}

const batchActor = "renewal-processor"

func NewProcessor(accounts AccountSource, entitlements Entitlements, historyRepo HistoryRepo, logger *zap.Logger) *Processor {
	return &Processor{
		accounts:     accounts,
		entitlements: entitlements,
		history:      historyRepo,
		logger:       logger,
		batchLimit:   500,
	}
}

// ProcessDue renews every due account with auto-renewal on and expires the
// rest. Per-account errors are caught and surfaced in the result, never
// swallowed.
func (p *Processor) ProcessDue(ctx context.Context, now time.Time) (*Result, error) {
	due, err := p.accounts.ListDue(ctx, now, p.batchLimit)
	if err != nil {
		return nil, err
	}

	result := &Result{RanAt: now}

	for i := range due {
		a := &due[i]
		result.ProcessedCount++

		if a.AutoRenewal {
			err = p.entitlements.RenewAccount(ctx, a.ID, now, batchActor)
			if err == nil {
				result.RenewedCount++
			}
		} else {
			err = p.entitlements.ExpireAccount(ctx, a.ID, now, batchActor)
			if err == nil {
				result.ExpiredCount++
			}
		}

		if err != nil {
			result.ErrorCount++
			result.Errors = append(result.Errors, ItemError{AccountID: a.ID, Error: err.Error()})
			p.logger.Error("failed to process due account",
				zap.Int64("account_id", a.ID),
				zap.Error(err),
			)
		}
	}

	p.record(ctx, result)

	p.logger.Info("renewal batch finished",
		zap.Int("processed", result.ProcessedCount),
		zap.Int("renewed", result.RenewedCount),
		zap.Int("expired", result.ExpiredCount),
		zap.Int("errors", result.ErrorCount),
	)

	return result, nil
}

func (p *Processor) record(ctx context.Context, result *Result) {
	err := p.history.Create(ctx, &history.Entry{
		Action: history.ActionBatchRun,
		Details: map[string]interface{}{
			"processed": result.ProcessedCount,
			"renewed":   result.RenewedCount,
			"expired":   result.ExpiredCount,
			"errors":    result.ErrorCount,
		},
		Actor: batchActor,
	})
	if err != nil {
		p.logger.Error("failed to record batch run", zap.Error(err))
	}
}
