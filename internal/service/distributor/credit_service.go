// internal/service/distributor/credit_service.go
package distributor

import (
	"context"
	"time"

	"lubripro-service/internal/domain/coupon"
	"lubripro-service/internal/domain/distributor"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

type DistributorRepo interface {
	Create(ctx context.Context, d *distributor.Distributor) error
	FindByID(ctx context.Context, id int64) (*distributor.Distributor, error)
	AddCreditsTx(ctx context.Context, tx pgx.Tx, id int64, quantity int, at time.Time) error
	CreatePurchaseTx(ctx context.Context, tx pgx.Tx, p *distributor.CreditPurchase) error
	UpdateStats(ctx context.Context, id int64, stats distributor.Stats) error
}

type CouponCounter interface {
	CountByStatus(ctx context.Context, distributorID int64) (map[coupon.Status]int, error)
}

type TxRunner interface {
	RunSerializable(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error
}

// Service manages the distributor credit ledger. Credits are only ever
// spent by coupon issuance; purchases are the only other mutation of the
// balance.
type Service struct {
	distributors DistributorRepo
	coupons      CouponCounter
	db           TxRunner
	logger       *zap.Logger
	now          func() time.Time
}

func NewService(distributors DistributorRepo, coupons CouponCounter, db TxRunner, logger *zap.Logger) *Service {
	return &Service{
		distributors: distributors,
		coupons:      coupons,
		db:           db,
		logger:       logger,
		now:          time.Now,
	}
}

// WithClock overrides the service clock; tests use this.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Create(ctx context.Context, name string) (*distributor.Distributor, error) {
	d := &distributor.Distributor{Name: name}
	if err := s.distributors.Create(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*distributor.Distributor, error) {
	return s.distributors.FindByID(ctx, id)
}

// UnitPrice is a decreasing step function of quantity. Display and
// record-keeping only; it never gates a purchase.
func UnitPrice(quantity int) float64 {
	switch {
	case quantity >= 100:
		return 8.0
	case quantity >= 50:
		return 9.0
	case quantity >= 10:
		return 10.0
	default:
		return 12.0
	}
}

// PurchaseCredits tops up the balance and appends a purchase-history entry
// in one transaction.
func (s *Service) PurchaseCredits(ctx context.Context, distributorID int64, req *distributor.PurchaseCreditsRequest) (*distributor.PurchaseCreditsResponse, error) {
	if _, err := s.distributors.FindByID(ctx, distributorID); err != nil {
		return nil, err
	}

	now := s.now()
	unitPrice := UnitPrice(req.Quantity)
	totalPrice := unitPrice * float64(req.Quantity)

	reference := req.Reference
	if reference == "" {
		reference = ulid.Make().String()
	}

	purchase := &distributor.CreditPurchase{
		DistributorID: distributorID,
		Quantity:      req.Quantity,
		UnitPrice:     unitPrice,
		TotalPrice:    totalPrice,
		Method:        req.Method,
		Reference:     reference,
	}

	err := s.db.RunSerializable(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := s.distributors.AddCreditsTx(ctx, tx, distributorID, req.Quantity, now); err != nil {
			return err
		}
		return s.distributors.CreatePurchaseTx(ctx, tx, purchase)
	})
	if err != nil {
		return nil, err
	}

	d, err := s.distributors.FindByID(ctx, distributorID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("credits purchased",
		zap.Int64("distributor_id", distributorID),
		zap.Int("quantity", req.Quantity),
		zap.Float64("total_price", totalPrice),
	)

	return &distributor.PurchaseCreditsResponse{
		Distributor: d,
		UnitPrice:   unitPrice,
		TotalPrice:  totalPrice,
	}, nil
}

// RecomputeStats rebuilds the derived counters from the coupon collection,
// which is the source of truth the stats must never override.
func (s *Service) RecomputeStats(ctx context.Context, distributorID int64) (*distributor.Distributor, error) {
	if _, err := s.distributors.FindByID(ctx, distributorID); err != nil {
		return nil, err
	}

	counts, err := s.coupons.CountByStatus(ctx, distributorID)
	if err != nil {
		return nil, err
	}

	stats := distributor.Stats{
		TotalCouponsGenerated: counts[coupon.StatusActive] + counts[coupon.StatusUsed] + counts[coupon.StatusExpired],
		TotalCouponsUsed:      counts[coupon.StatusUsed],
		TotalCouponsExpired:   counts[coupon.StatusExpired],
		ActiveAccounts:        counts[coupon.StatusUsed],
	}

	if err := s.distributors.UpdateStats(ctx, distributorID, stats); err != nil {
		return nil, err
	}

	return s.distributors.FindByID(ctx, distributorID)
}
