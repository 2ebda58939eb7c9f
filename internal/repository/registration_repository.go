package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/school-registry/internal/models"
)

const registrationColumns = `id, student_id, family_id, season_id, arrangement_id, class_id, status, previous_status,
        balance_id, charged_term, charged_tuition, charged_book_fee, charged_special_fee, registered_at, updated_at`

const activeStatusClause = "status IN (1, 2, 6)"

// RegistrationRepository persists class registrations.
type RegistrationRepository struct {
	db *sqlx.DB
}

// NewRegistrationRepository constructs the repository.
func NewRegistrationRepository(db *sqlx.DB) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

func (r *RegistrationRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByID returns a registration by identifier.
func (r *RegistrationRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id int64) (*models.ClassRegistration, error) {
	query := `SELECT ` + registrationColumns + ` FROM class_registrations WHERE id = $1`
	var reg models.ClassRegistration
	if err := sqlx.GetContext(ctx, r.exec(exec), &reg, query, id); err != nil {
		return nil, err
	}
	return &reg, nil
}

// LockByID loads a registration holding a row lock.
func (r *RegistrationRepository) LockByID(ctx context.Context, tx sqlx.ExtContext, id int64) (*models.ClassRegistration, error) {
	query := `SELECT ` + registrationColumns + ` FROM class_registrations WHERE id = $1 FOR UPDATE`
	var reg models.ClassRegistration
	if err := sqlx.GetContext(ctx, tx, &reg, query, id); err != nil {
		return nil, err
	}
	return &reg, nil
}

// FindActiveForStudent returns the student's active registration in an arrangement for a season.
func (r *RegistrationRepository) FindActiveForStudent(ctx context.Context, exec sqlx.ExtContext, studentID, seasonID, arrangementID int64) (*models.ClassRegistration, error) {
	query := `SELECT ` + registrationColumns + ` FROM class_registrations
        WHERE student_id = $1 AND season_id = $2 AND arrangement_id = $3 AND ` + activeStatusClause + ` FOR UPDATE`
	var reg models.ClassRegistration
	if err := sqlx.GetContext(ctx, r.exec(exec), &reg, query, studentID, seasonID, arrangementID); err != nil {
		return nil, err
	}
	return &reg, nil
}

// CountActive counts registrations occupying a seat in the arrangement.
func (r *RegistrationRepository) CountActive(ctx context.Context, exec sqlx.ExtContext, arrangementID int64) (int, error) {
	query := `SELECT COUNT(*) FROM class_registrations WHERE arrangement_id = $1 AND ` + activeStatusClause
	var count int
	if err := sqlx.GetContext(ctx, r.exec(exec), &count, query, arrangementID); err != nil {
		return 0, fmt.Errorf("count active registrations: %w", err)
	}
	return count, nil
}

// ExistsActive reports whether the student already holds an active seat in the arrangement for the season.
func (r *RegistrationRepository) ExistsActive(ctx context.Context, exec sqlx.ExtContext, studentID, seasonID, arrangementID int64) (bool, error) {
	query := `SELECT 1 FROM class_registrations WHERE student_id = $1 AND season_id = $2 AND arrangement_id = $3 AND ` +
		activeStatusClause + ` LIMIT 1`
	var exists int
	if err := sqlx.GetContext(ctx, r.exec(exec), &exists, query, studentID, seasonID, arrangementID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check active registration: %w", err)
	}
	return true, nil
}

// CountActiveByFamilySeason counts active registrations of a family in a season.
func (r *RegistrationRepository) CountActiveByFamilySeason(ctx context.Context, exec sqlx.ExtContext, familyID, seasonID int64) (int, error) {
	query := `SELECT COUNT(*) FROM class_registrations WHERE family_id = $1 AND season_id = $2 AND ` + activeStatusClause
	var count int
	if err := sqlx.GetContext(ctx, r.exec(exec), &count, query, familyID, seasonID); err != nil {
		return 0, fmt.Errorf("count family registrations: %w", err)
	}
	return count, nil
}

// Create inserts a registration.
func (r *RegistrationRepository) Create(ctx context.Context, exec sqlx.ExtContext, reg *models.ClassRegistration) error {
	if reg == nil {
		return fmt.Errorf("registration payload is nil")
	}
	if reg.Status == 0 {
		reg.Status = models.RegistrationSubmitted
	}
	const query = `INSERT INTO class_registrations (student_id, family_id, season_id, arrangement_id, class_id, status,
        previous_status, balance_id, charged_term, charged_tuition, charged_book_fee, charged_special_fee)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
        RETURNING id, registered_at, updated_at`
	row := r.exec(exec).QueryRowxContext(ctx, query,
		reg.StudentID, reg.FamilyID, reg.SeasonID, reg.ArrangementID, reg.ClassID, reg.Status, reg.PreviousStatus, reg.BalanceID,
		reg.ChargedTerm, reg.ChargedTuition, reg.ChargedBookFee, reg.ChargedSpecial,
	)
	if err := row.Scan(&reg.ID, &reg.RegisteredAt, &reg.UpdatedAt); err != nil {
		return fmt.Errorf("create registration: %w", err)
	}
	return nil
}

// Move points a registration at another arrangement.
func (r *RegistrationRepository) Move(ctx context.Context, exec sqlx.ExtContext, id, arrangementID, classID int64, at time.Time) error {
	const query = `UPDATE class_registrations SET arrangement_id = $2, class_id = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.exec(exec).ExecContext(ctx, query, id, arrangementID, classID, at); err != nil {
		return fmt.Errorf("move registration: %w", err)
	}
	return nil
}

// UpdateStatus sets a new status recording the previous one.
func (r *RegistrationRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id int64, status, previous models.RegistrationStatus, at time.Time) error {
	const query = `UPDATE class_registrations SET status = $2, previous_status = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.exec(exec).ExecContext(ctx, query, id, status, previous, at); err != nil {
		return fmt.Errorf("update registration status: %w", err)
	}
	return nil
}

// MarkRegistered flips the family's submitted registrations in a season to registered.
// Registrations without a linked ledger row are stamped with balanceID.
func (r *RegistrationRepository) MarkRegistered(ctx context.Context, exec sqlx.ExtContext, familyID, seasonID, balanceID int64, at time.Time) (int64, error) {
	const query = `UPDATE class_registrations
        SET previous_status = status, status = $4,
            balance_id = CASE WHEN balance_id = 0 THEN $3 ELSE balance_id END,
            updated_at = $5
        WHERE family_id = $1 AND season_id = $2 AND status = $6`
	res, err := r.exec(exec).ExecContext(ctx, query, familyID, seasonID, balanceID, models.RegistrationRegistered, at, models.RegistrationSubmitted)
	if err != nil {
		return 0, fmt.Errorf("mark registrations registered: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected, nil
}

// Delete removes a registration row.
func (r *RegistrationRepository) Delete(ctx context.Context, exec sqlx.ExtContext, id int64) error {
	if _, err := r.exec(exec).ExecContext(ctx, `DELETE FROM class_registrations WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete registration: %w", err)
	}
	return nil
}

// ListActiveByArrangement returns the active registrations seated in an arrangement.
func (r *RegistrationRepository) ListActiveByArrangement(ctx context.Context, exec sqlx.ExtContext, arrangementID int64) ([]models.ClassRegistration, error) {
	query := `SELECT ` + registrationColumns + ` FROM class_registrations WHERE arrangement_id = $1 AND ` + activeStatusClause + ` ORDER BY id`
	var regs []models.ClassRegistration
	if err := sqlx.SelectContext(ctx, r.exec(exec), &regs, query, arrangementID); err != nil {
		return nil, fmt.Errorf("list arrangement registrations: %w", err)
	}
	return regs, nil
}

// List returns registrations matching the filter with total count.
func (r *RegistrationRepository) List(ctx context.Context, filter models.RegistrationFilter) ([]models.ClassRegistration, int, error) {
	var conditions []string
	var args []interface{}
	if filter.FamilyID != 0 {
		conditions = append(conditions, fmt.Sprintf("family_id = $%d", len(args)+1))
		args = append(args, filter.FamilyID)
	}
	if filter.StudentID != 0 {
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.SeasonID != 0 {
		conditions = append(conditions, fmt.Sprintf("season_id = $%d", len(args)+1))
		args = append(args, filter.SeasonID)
	}
	if filter.ArrangementID != 0 {
		conditions = append(conditions, fmt.Sprintf("arrangement_id = $%d", len(args)+1))
		args = append(args, filter.ArrangementID)
	}
	if filter.Status != 0 {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s FROM class_registrations%s ORDER BY registered_at DESC, id DESC LIMIT %d OFFSET %d`,
		registrationColumns, clause, size, offset)
	var regs []models.ClassRegistration
	if err := r.db.SelectContext(ctx, &regs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list registrations: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM class_registrations"+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count registrations: %w", err)
	}
	return regs, total, nil
}
