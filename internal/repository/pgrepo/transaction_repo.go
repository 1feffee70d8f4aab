package pgrepo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"whatprice-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type transactionRepository struct {
	db *pgxpool.Pool
}

func NewTransactionRepository(db *pgxpool.Pool) domain.TransactionRepository {
	return &transactionRepository{db: db}
}

const transactionColumns = `
	id, vendor_id, transaction_type,
	credit_change, credit_balance_before, credit_balance_after,
	status, description, related_transaction_id,
	purchase_details, deduction_details, created_at`

func scanTransaction(row pgx.Row) (*domain.ViewTransaction, error) {
	var t domain.ViewTransaction
	var purchaseJSON, deductionJSON []byte
	err := row.Scan(
		&t.ID, &t.VendorID, &t.Type,
		&t.CreditChange, &t.CreditBalanceBefore, &t.CreditBalanceAfter,
		&t.Status, &t.Description, &t.RelatedTransactionID,
		&purchaseJSON, &deductionJSON, &t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to scan transaction: %w", err)
	}
	if len(purchaseJSON) > 0 {
		if err := json.Unmarshal(purchaseJSON, &t.PurchaseDetails); err != nil {
			return nil, fmt.Errorf("failed to unmarshal purchase details: %w", err)
		}
	}
	if len(deductionJSON) > 0 {
		if err := json.Unmarshal(deductionJSON, &t.DeductionDetails); err != nil {
			return nil, fmt.Errorf("failed to unmarshal deduction details: %w", err)
		}
	}
	return &t, nil
}

func (r *transactionRepository) Create(ctx context.Context, tx *domain.ViewTransaction) error {
	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now()
	}

	var purchaseJSON, deductionJSON []byte
	var err error
	if tx.PurchaseDetails != nil {
		if purchaseJSON, err = json.Marshal(tx.PurchaseDetails); err != nil {
			return fmt.Errorf("failed to marshal purchase details: %w", err)
		}
	}
	if tx.DeductionDetails != nil {
		if deductionJSON, err = json.Marshal(tx.DeductionDetails); err != nil {
			return fmt.Errorf("failed to marshal deduction details: %w", err)
		}
	}

	query := `
		INSERT INTO view_transactions (
			id, vendor_id, transaction_type,
			credit_change, credit_balance_before, credit_balance_after,
			status, description, related_transaction_id,
			purchase_details, deduction_details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err = querier(ctx, r.db).Exec(ctx, query,
		tx.ID, tx.VendorID, tx.Type,
		tx.CreditChange, tx.CreditBalanceBefore, tx.CreditBalanceAfter,
		tx.Status, tx.Description, tx.RelatedTransactionID,
		purchaseJSON, deductionJSON, tx.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

func (r *transactionRepository) GetByID(ctx context.Context, id string) (*domain.ViewTransaction, error) {
	query := `SELECT` + transactionColumns + ` FROM view_transactions WHERE id = $1`
	return scanTransaction(querier(ctx, r.db).QueryRow(ctx, query, id))
}

func (r *transactionRepository) GetByVendorID(ctx context.Context, vendorID string, filter domain.TransactionFilter) ([]domain.ViewTransaction, int64, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 || filter.Limit > 100 {
		filter.Limit = 20
	}

	where := ` WHERE vendor_id = $1`
	args := []any{vendorID}
	idx := 2
	if filter.Type != "" {
		where += fmt.Sprintf(" AND transaction_type = $%d", idx)
		args = append(args, filter.Type)
		idx++
	}

	var total int64
	if err := querier(ctx, r.db).QueryRow(ctx, `SELECT COUNT(*) FROM view_transactions`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	query := `SELECT` + transactionColumns + ` FROM view_transactions` + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, filter.Limit, (filter.Page-1)*filter.Limit)

	rows, err := querier(ctx, r.db).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var txs []domain.ViewTransaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, err
		}
		txs = append(txs, *t)
	}
	return txs, total, rows.Err()
}

func (r *transactionRepository) GetByVendorAndRange(ctx context.Context, vendorID string, from, to time.Time) ([]domain.ViewTransaction, error) {
	query := `SELECT` + transactionColumns + `
		FROM view_transactions
		WHERE vendor_id = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY created_at ASC`

	rows, err := querier(ctx, r.db).Query(ctx, query, vendorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions by range: %w", err)
	}
	defer rows.Close()

	var txs []domain.ViewTransaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *t)
	}
	return txs, rows.Err()
}

func (r *transactionRepository) MarkRefunded(ctx context.Context, id string) (bool, error) {
	// Only a completed entry may flip to refunded; the entry itself is
	// never edited beyond this status transition.
	query := `UPDATE view_transactions SET status = $1 WHERE id = $2 AND status = $3`
	tag, err := querier(ctx, r.db).Exec(ctx, query, domain.TransactionStatusRefunded, id, domain.TransactionStatusCompleted)
	if err != nil {
		return false, fmt.Errorf("failed to mark transaction refunded: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
