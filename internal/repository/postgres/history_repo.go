// internal/repository/postgres/history_repo.go
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"lubripro-service/internal/domain/history"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type HistoryRepository struct {
	db *pgxpool.Pool
}

func NewHistoryRepository(db *pgxpool.Pool) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Create appends a billing event.
func (r *HistoryRepository) Create(ctx context.Context, e *history.Entry) error {
	return createEntry(ctx, r.db, e)
}

// CreateTx is Create within an existing transaction.
func (r *HistoryRepository) CreateTx(ctx context.Context, tx pgx.Tx, e *history.Entry) error {
	return createEntry(ctx, tx, e)
}

func createEntry(ctx context.Context, q DBTX, e *history.Entry) error {
	query := `
		INSERT INTO billing_events (account_id, action, details, actor)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`

	var detailsJSON []byte
	var err error
	if e.Details != nil {
		detailsJSON, err = json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("failed to marshal event details: %w", err)
		}
	}

	err = q.QueryRow(ctx, query, e.AccountID, e.Action, detailsJSON, e.Actor).
		Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create billing event: %w", err)
	}

	return nil
}

// ListByAccount returns the account's billing events, newest first.
func (r *HistoryRepository) ListByAccount(ctx context.Context, accountID int64, limit int) ([]history.Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, account_id, action, details, actor, created_at
		FROM billing_events
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list billing events: %w", err)
	}
	defer rows.Close()

	var entries []history.Entry
	for rows.Next() {
		var e history.Entry
		var detailsJSON []byte
		if err := rows.Scan(&e.ID, &e.AccountID, &e.Action, &detailsJSON, &e.Actor, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan billing event: %w", err)
		}
		if len(detailsJSON) > 0 {
			_ = json.Unmarshal(detailsJSON, &e.Details)
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}
