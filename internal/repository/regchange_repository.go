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

const regChangeColumns = `id, registration_id, family_id, student_id, season_id, target_arrangement_id, status, processed_by,
        processed_at, note, created_at`

// RegChangeRepository persists registration change requests.
type RegChangeRepository struct {
	db *sqlx.DB
}

// NewRegChangeRepository constructs the repository.
func NewRegChangeRepository(db *sqlx.DB) *RegChangeRepository {
	return &RegChangeRepository{db: db}
}

func (r *RegChangeRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// LockByID loads a request holding a row lock.
func (r *RegChangeRepository) LockByID(ctx context.Context, tx sqlx.ExtContext, id int64) (*models.RegChangeRequest, error) {
	query := `SELECT ` + regChangeColumns + ` FROM reg_change_requests WHERE id = $1 FOR UPDATE`
	var req models.RegChangeRequest
	if err := sqlx.GetContext(ctx, tx, &req, query, id); err != nil {
		return nil, err
	}
	return &req, nil
}

// HasPending reports whether a pending request exists for the registration.
func (r *RegChangeRepository) HasPending(ctx context.Context, exec sqlx.ExtContext, registrationID int64) (bool, error) {
	const query = `SELECT 1 FROM reg_change_requests WHERE registration_id = $1 AND status = $2 LIMIT 1`
	var exists int
	if err := sqlx.GetContext(ctx, r.exec(exec), &exists, query, registrationID, models.ChangeRequestPending); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check pending change request: %w", err)
	}
	return true, nil
}

// Create inserts a pending request.
func (r *RegChangeRepository) Create(ctx context.Context, exec sqlx.ExtContext, req *models.RegChangeRequest) error {
	if req == nil {
		return fmt.Errorf("change request payload is nil")
	}
	if req.Status == 0 {
		req.Status = models.ChangeRequestPending
	}
	const query = `INSERT INTO reg_change_requests (registration_id, family_id, student_id, season_id, target_arrangement_id, status, note)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING id, created_at`
	row := r.exec(exec).QueryRowxContext(ctx, query,
		req.RegistrationID, req.FamilyID, req.StudentID, req.SeasonID, req.TargetArrangementID, req.Status, req.Note,
	)
	if err := row.Scan(&req.ID, &req.CreatedAt); err != nil {
		return fmt.Errorf("create change request: %w", err)
	}
	return nil
}

// Process moves a request to a terminal status stamping the processor.
func (r *RegChangeRepository) Process(ctx context.Context, exec sqlx.ExtContext, id int64, status models.ChangeRequestStatus, processedBy int64, at time.Time) error {
	const query = `UPDATE reg_change_requests SET status = $2, processed_by = $3, processed_at = $4 WHERE id = $1`
	if _, err := r.exec(exec).ExecContext(ctx, query, id, status, processedBy, at); err != nil {
		return fmt.Errorf("process change request: %w", err)
	}
	return nil
}

// DeletePending removes the pending request of a registration owned by the family.
func (r *RegChangeRepository) DeletePending(ctx context.Context, exec sqlx.ExtContext, registrationID, familyID int64) (int64, error) {
	const query = `DELETE FROM reg_change_requests WHERE registration_id = $1 AND family_id = $2 AND status = $3`
	res, err := r.exec(exec).ExecContext(ctx, query, registrationID, familyID, models.ChangeRequestPending)
	if err != nil {
		return 0, fmt.Errorf("delete pending change request: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected, nil
}

// List returns requests matching the filter with total count.
func (r *RegChangeRepository) List(ctx context.Context, filter models.RegChangeFilter) ([]models.RegChangeRequest, int, error) {
	var conditions []string
	var args []interface{}
	if filter.FamilyID != 0 {
		conditions = append(conditions, fmt.Sprintf("family_id = $%d", len(args)+1))
		args = append(args, filter.FamilyID)
	}
	if filter.SeasonID != 0 {
		conditions = append(conditions, fmt.Sprintf("season_id = $%d", len(args)+1))
		args = append(args, filter.SeasonID)
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

	query := fmt.Sprintf(`SELECT %s FROM reg_change_requests%s ORDER BY created_at DESC, id DESC LIMIT %d OFFSET %d`,
		regChangeColumns, clause, size, offset)
	var reqs []models.RegChangeRequest
	if err := r.db.SelectContext(ctx, &reqs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list change requests: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM reg_change_requests"+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count change requests: %w", err)
	}
	return reqs, total, nil
}
