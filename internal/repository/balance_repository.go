package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/school-registry/internal/models"
)

const balanceColumns = `id, family_id, season_id, registration_fee, early_reg_discount, late_reg_fee, manage_fee, duty_fee,
        cleaning_fee, other_fee, tuition, book_fee, special_fee, group_discount, process_fee, total_amount, type, status, note,
        created_at, updated_at`

// BalanceRepository persists the family balance ledger.
type BalanceRepository struct {
	db *sqlx.DB
}

// NewBalanceRepository constructs the repository.
func NewBalanceRepository(db *sqlx.DB) *BalanceRepository {
	return &BalanceRepository{db: db}
}

func (r *BalanceRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByID returns a ledger row by identifier.
func (r *BalanceRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id int64) (*models.FamilyBalance, error) {
	query := `SELECT ` + balanceColumns + ` FROM family_balances WHERE id = $1`
	var row models.FamilyBalance
	if err := sqlx.GetContext(ctx, r.exec(exec), &row, query, id); err != nil {
		return nil, err
	}
	return &row, nil
}

// LockByID loads a ledger row holding a row lock.
func (r *BalanceRepository) LockByID(ctx context.Context, tx sqlx.ExtContext, id int64) (*models.FamilyBalance, error) {
	query := `SELECT ` + balanceColumns + ` FROM family_balances WHERE id = $1 FOR UPDATE`
	var row models.FamilyBalance
	if err := sqlx.GetContext(ctx, tx, &row, query, id); err != nil {
		return nil, err
	}
	return &row, nil
}

// LockForFamily loads the family's ledger row holding a row lock.
func (r *BalanceRepository) LockForFamily(ctx context.Context, tx sqlx.ExtContext, familyID, balanceID int64) (*models.FamilyBalance, error) {
	query := `SELECT ` + balanceColumns + ` FROM family_balances WHERE id = $1 AND family_id = $2 FOR UPDATE`
	var row models.FamilyBalance
	if err := sqlx.GetContext(ctx, tx, &row, query, balanceID, familyID); err != nil {
		return nil, err
	}
	return &row, nil
}

// Create appends a ledger row. Rows whose total does not match their fields are refused.
func (r *BalanceRepository) Create(ctx context.Context, exec sqlx.ExtContext, b *models.FamilyBalance) error {
	if b == nil {
		return fmt.Errorf("balance payload is nil")
	}
	if !b.Consistent() {
		return fmt.Errorf("create balance: total %s does not match fee fields %s", b.TotalAmount, b.FieldSum())
	}
	if b.Status == "" {
		b.Status = models.BalanceStatusOpen
	}
	const query = `INSERT INTO family_balances (family_id, season_id, registration_fee, early_reg_discount, late_reg_fee,
        manage_fee, duty_fee, cleaning_fee, other_fee, tuition, book_fee, special_fee, group_discount, process_fee,
        total_amount, type, status, note)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
        RETURNING id, created_at, updated_at`
	row := r.exec(exec).QueryRowxContext(ctx, query,
		b.FamilyID, b.SeasonID, b.RegistrationFee, b.EarlyRegDiscount, b.LateRegFee, b.ManageFee, b.DutyFee,
		b.CleaningFee, b.OtherFee, b.Tuition, b.BookFee, b.SpecialFee, b.GroupDiscount, b.ProcessFee,
		b.TotalAmount, b.Type, b.Status, b.Note,
	)
	if err := row.Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return fmt.Errorf("create balance: %w", err)
	}
	return nil
}

// UpdateAmounts persists the fee fields, total and status of a row.
func (r *BalanceRepository) UpdateAmounts(ctx context.Context, exec sqlx.ExtContext, b *models.FamilyBalance) error {
	if !b.Consistent() {
		return fmt.Errorf("update balance %d: total %s does not match fee fields %s", b.ID, b.TotalAmount, b.FieldSum())
	}
	b.UpdatedAt = time.Now().UTC()
	const query = `UPDATE family_balances SET registration_fee = $2, early_reg_discount = $3, late_reg_fee = $4, manage_fee = $5,
        duty_fee = $6, cleaning_fee = $7, other_fee = $8, tuition = $9, book_fee = $10, special_fee = $11,
        group_discount = $12, process_fee = $13, total_amount = $14, status = $15, updated_at = $16
        WHERE id = $1`
	if _, err := r.exec(exec).ExecContext(ctx, query,
		b.ID, b.RegistrationFee, b.EarlyRegDiscount, b.LateRegFee, b.ManageFee, b.DutyFee, b.CleaningFee, b.OtherFee,
		b.Tuition, b.BookFee, b.SpecialFee, b.GroupDiscount, b.ProcessFee, b.TotalAmount, b.Status, b.UpdatedAt,
	); err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	return nil
}

// ListByFamilySeason returns a family's ledger rows for a season in insertion order.
func (r *BalanceRepository) ListByFamilySeason(ctx context.Context, familyID, seasonID int64) ([]models.FamilyBalance, error) {
	query := `SELECT ` + balanceColumns + ` FROM family_balances WHERE family_id = $1 AND season_id = $2 ORDER BY id`
	var rows []models.FamilyBalance
	if err := r.db.SelectContext(ctx, &rows, query, familyID, seasonID); err != nil {
		return nil, fmt.Errorf("list family balances: %w", err)
	}
	return rows, nil
}
