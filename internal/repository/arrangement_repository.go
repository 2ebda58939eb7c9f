package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/school-registry/internal/models"
)

const arrangementColumns = `id, season_id, class_id, teacher_id, room_id, time_slot_id, seat_limit, age_limit,
        tuition_w, book_fee_w, special_fee_w, tuition_h, book_fee_h, special_fee_h, is_reg_class, notes, created_at, updated_at`

// ArrangementRepository persists the per-season class catalog.
type ArrangementRepository struct {
	db *sqlx.DB
}

// NewArrangementRepository constructs the repository.
func NewArrangementRepository(db *sqlx.DB) *ArrangementRepository {
	return &ArrangementRepository{db: db}
}

func (r *ArrangementRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByID returns an arrangement by identifier.
func (r *ArrangementRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id int64) (*models.Arrangement, error) {
	query := `SELECT ` + arrangementColumns + ` FROM arrangements WHERE id = $1`
	var arrangement models.Arrangement
	if err := sqlx.GetContext(ctx, r.exec(exec), &arrangement, query, id); err != nil {
		return nil, err
	}
	return &arrangement, nil
}

// LockByID loads an arrangement holding a row lock until the transaction ends.
func (r *ArrangementRepository) LockByID(ctx context.Context, tx sqlx.ExtContext, id int64) (*models.Arrangement, error) {
	query := `SELECT ` + arrangementColumns + ` FROM arrangements WHERE id = $1 FOR UPDATE`
	var arrangement models.Arrangement
	if err := sqlx.GetContext(ctx, tx, &arrangement, query, id); err != nil {
		return nil, err
	}
	return &arrangement, nil
}

// List returns arrangements matching the filter ordered by class.
func (r *ArrangementRepository) List(ctx context.Context, filter models.ArrangementFilter) ([]models.Arrangement, error) {
	var conditions []string
	var args []interface{}
	if filter.SeasonID != 0 {
		conditions = append(conditions, fmt.Sprintf("season_id = $%d", len(args)+1))
		args = append(args, filter.SeasonID)
	}
	if filter.ClassID != 0 {
		conditions = append(conditions, fmt.Sprintf("class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.TeacherID != 0 {
		conditions = append(conditions, fmt.Sprintf("teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.RegClasses != nil {
		conditions = append(conditions, fmt.Sprintf("is_reg_class = $%d", len(args)+1))
		args = append(args, *filter.RegClasses)
	}
	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	query := `SELECT ` + arrangementColumns + ` FROM arrangements` + clause + ` ORDER BY class_id, id`
	var arrangements []models.Arrangement
	if err := r.db.SelectContext(ctx, &arrangements, query, args...); err != nil {
		return nil, fmt.Errorf("list arrangements: %w", err)
	}
	return arrangements, nil
}

// Create inserts an arrangement.
func (r *ArrangementRepository) Create(ctx context.Context, exec sqlx.ExtContext, a *models.Arrangement) error {
	if a == nil {
		return fmt.Errorf("arrangement payload is nil")
	}
	const query = `INSERT INTO arrangements (season_id, class_id, teacher_id, room_id, time_slot_id, seat_limit, age_limit,
        tuition_w, book_fee_w, special_fee_w, tuition_h, book_fee_h, special_fee_h, is_reg_class, notes)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
        RETURNING id, created_at, updated_at`
	row := r.exec(exec).QueryRowxContext(ctx, query,
		a.SeasonID, a.ClassID, a.TeacherID, a.RoomID, a.TimeSlotID, a.SeatLimit, a.AgeLimit,
		a.TuitionW, a.BookFeeW, a.SpecialFeeW, a.TuitionH, a.BookFeeH, a.SpecialFeeH, a.IsRegClass, a.Notes,
	)
	if err := row.Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return fmt.Errorf("create arrangement: %w", err)
	}
	return nil
}

// Update rewrites the mutable columns of an arrangement.
func (r *ArrangementRepository) Update(ctx context.Context, exec sqlx.ExtContext, a *models.Arrangement) error {
	a.UpdatedAt = time.Now().UTC()
	const query = `UPDATE arrangements SET class_id = $2, teacher_id = $3, room_id = $4, time_slot_id = $5, seat_limit = $6,
        age_limit = $7, tuition_w = $8, book_fee_w = $9, special_fee_w = $10, tuition_h = $11, book_fee_h = $12,
        special_fee_h = $13, is_reg_class = $14, notes = $15, updated_at = $16 WHERE id = $1`
	if _, err := r.exec(exec).ExecContext(ctx, query,
		a.ID, a.ClassID, a.TeacherID, a.RoomID, a.TimeSlotID, a.SeatLimit, a.AgeLimit,
		a.TuitionW, a.BookFeeW, a.SpecialFeeW, a.TuitionH, a.BookFeeH, a.SpecialFeeH, a.IsRegClass, a.Notes, a.UpdatedAt,
	); err != nil {
		return fmt.Errorf("update arrangement: %w", err)
	}
	return nil
}

// Roster lists the students actively seated in an arrangement.
func (r *ArrangementRepository) Roster(ctx context.Context, arrangementID int64) ([]models.RosterEntry, error) {
	const query = `SELECT cr.id AS registration_id, cr.student_id, s.full_name AS student_name, cr.family_id, cr.status, cr.registered_at
        FROM class_registrations cr
        JOIN students s ON s.id = cr.student_id
        WHERE cr.arrangement_id = $1 AND cr.status IN (1, 2, 6)
        ORDER BY s.full_name`
	var entries []models.RosterEntry
	if err := r.db.SelectContext(ctx, &entries, query, arrangementID); err != nil {
		return nil, fmt.Errorf("list arrangement roster: %w", err)
	}
	return entries, nil
}
