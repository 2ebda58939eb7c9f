package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/school-registry/internal/models"
)

// PaymentReceiptRepository journals applied payments.
type PaymentReceiptRepository struct {
	db *sqlx.DB
}

// NewPaymentReceiptRepository constructs the repository.
func NewPaymentReceiptRepository(db *sqlx.DB) *PaymentReceiptRepository {
	return &PaymentReceiptRepository{db: db}
}

func (r *PaymentReceiptRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// ExistsReference reports whether a receipt with the reference was already applied.
func (r *PaymentReceiptRepository) ExistsReference(ctx context.Context, exec sqlx.ExtContext, reference string) (bool, error) {
	const query = `SELECT 1 FROM payment_receipts WHERE reference = $1 LIMIT 1`
	var exists int
	if err := sqlx.GetContext(ctx, r.exec(exec), &exists, query, reference); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check payment reference: %w", err)
	}
	return true, nil
}

// Create inserts a receipt.
func (r *PaymentReceiptRepository) Create(ctx context.Context, exec sqlx.ExtContext, receipt *models.PaymentReceipt) error {
	if receipt == nil {
		return fmt.Errorf("receipt payload is nil")
	}
	const query = `INSERT INTO payment_receipts (balance_id, family_id, amount, reference, paid_at, note, source, created_by)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING id, created_at`
	row := r.exec(exec).QueryRowxContext(ctx, query,
		receipt.BalanceID, receipt.FamilyID, receipt.Amount, receipt.Reference, receipt.PaidAt, receipt.Note,
		receipt.Source, receipt.CreatedBy,
	)
	if err := row.Scan(&receipt.ID, &receipt.CreatedAt); err != nil {
		return fmt.Errorf("create payment receipt: %w", err)
	}
	return nil
}

// ListByFamilySeason returns receipts applied to a family's rows in a season.
func (r *PaymentReceiptRepository) ListByFamilySeason(ctx context.Context, familyID, seasonID int64) ([]models.PaymentReceipt, error) {
	const query = `SELECT p.id, p.balance_id, p.family_id, p.amount, p.reference, p.paid_at, p.note, p.source, p.created_by, p.created_at
        FROM payment_receipts p
        JOIN family_balances b ON b.id = p.balance_id
        WHERE p.family_id = $1 AND b.season_id = $2
        ORDER BY p.paid_at, p.id`
	var receipts []models.PaymentReceipt
	if err := r.db.SelectContext(ctx, &receipts, query, familyID, seasonID); err != nil {
		return nil, fmt.Errorf("list payment receipts: %w", err)
	}
	return receipts, nil
}
