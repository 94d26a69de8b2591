// internal/repository/postgres/payment_repo.go
package postgres

import (
	"context"
	"fmt"

	"lubripro-service/internal/domain/payment"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PaymentRepository struct {
	db *pgxpool.Pool
}

func NewPaymentRepository(db *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create appends a payment ledger entry.
func (r *PaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	return createPayment(ctx, r.db, p)
}

// CreateTx is Create within an existing transaction.
func (r *PaymentRepository) CreateTx(ctx context.Context, tx pgx.Tx, p *payment.Payment) error {
	return createPayment(ctx, tx, p)
}

func createPayment(ctx context.Context, q DBTX, p *payment.Payment) error {
	query := `
		INSERT INTO payments (account_id, amount, method, reference, paid_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	err := q.QueryRow(ctx, query, p.AccountID, p.Amount, p.Method, p.Reference, p.PaidAt).
		Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}

	return nil
}

// ListByAccount returns the account's payment ledger, newest first.
func (r *PaymentRepository) ListByAccount(ctx context.Context, accountID int64, limit int) ([]payment.Payment, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, account_id, amount, method, reference, paid_at, created_at
		FROM payments
		WHERE account_id = $1
		ORDER BY paid_at DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var payments []payment.Payment
	for rows.Next() {
		var p payment.Payment
		if err := rows.Scan(&p.ID, &p.AccountID, &p.Amount, &p.Method, &p.Reference, &p.PaidAt, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, p)
	}

	return payments, rows.Err()
}
