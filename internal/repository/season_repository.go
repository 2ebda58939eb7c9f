package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/school-registry/internal/models"
)

const seasonColumns = `id, name, status, start_date, end_date, early_reg_date, normal_reg_date, late_reg_date,
        close_reg_date, cancel_deadline, begin_season_id, related_season_id, created_at, updated_at`

// SeasonRepository persists seasons and their fall/spring links.
type SeasonRepository struct {
	db *sqlx.DB
}

// NewSeasonRepository constructs the repository.
func NewSeasonRepository(db *sqlx.DB) *SeasonRepository {
	return &SeasonRepository{db: db}
}

func (r *SeasonRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByID returns a season by identifier.
func (r *SeasonRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id int64) (*models.Season, error) {
	query := `SELECT ` + seasonColumns + ` FROM seasons WHERE id = $1`
	var season models.Season
	if err := sqlx.GetContext(ctx, r.exec(exec), &season, query, id); err != nil {
		return nil, err
	}
	return &season, nil
}

// ListTerms returns the sub-terms linked to a year record ordered fall first.
func (r *SeasonRepository) ListTerms(ctx context.Context, exec sqlx.ExtContext, yearID int64) ([]models.Season, error) {
	query := `SELECT ` + seasonColumns + ` FROM seasons WHERE begin_season_id = $1 AND id <> $1 ORDER BY id`
	var seasons []models.Season
	if err := sqlx.SelectContext(ctx, r.exec(exec), &seasons, query, yearID); err != nil {
		return nil, fmt.Errorf("list season terms: %w", err)
	}
	return seasons, nil
}

// List returns seasons filtered by status with total count.
func (r *SeasonRepository) List(ctx context.Context, filter models.SeasonFilter) ([]models.Season, int, error) {
	var conditions []string
	var args []interface{}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.YearOnly {
		conditions = append(conditions, "begin_season_id = id")
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

	query := fmt.Sprintf(`SELECT %s FROM seasons%s ORDER BY id DESC LIMIT %d OFFSET %d`, seasonColumns, clause, size, offset)
	var seasons []models.Season
	if err := r.db.SelectContext(ctx, &seasons, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list seasons: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM seasons"+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count seasons: %w", err)
	}
	return seasons, total, nil
}

// Create inserts a season and fills its identifier and timestamps.
func (r *SeasonRepository) Create(ctx context.Context, exec sqlx.ExtContext, season *models.Season) error {
	if season == nil {
		return fmt.Errorf("season payload is nil")
	}
	if season.Status == "" {
		season.Status = models.SeasonStatusActive
	}
	const query = `INSERT INTO seasons (name, status, start_date, end_date, early_reg_date, normal_reg_date, late_reg_date,
        close_reg_date, cancel_deadline, begin_season_id, related_season_id)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        RETURNING id, created_at, updated_at`
	row := r.exec(exec).QueryRowxContext(ctx, query,
		season.Name, season.Status, season.StartDate, season.EndDate,
		season.EarlyRegDate, season.NormalRegDate, season.LateRegDate, season.CloseRegDate, season.CancelDeadline,
		season.BeginSeasonID, season.RelatedSeasonID,
	)
	if err := row.Scan(&season.ID, &season.CreatedAt, &season.UpdatedAt); err != nil {
		return fmt.Errorf("create season: %w", err)
	}
	return nil
}

// Link sets the begin/related references of a season.
func (r *SeasonRepository) Link(ctx context.Context, exec sqlx.ExtContext, id, beginID, relatedID int64) error {
	const query = `UPDATE seasons SET begin_season_id = $2, related_season_id = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.exec(exec).ExecContext(ctx, query, id, beginID, relatedID, time.Now().UTC()); err != nil {
		return fmt.Errorf("link season: %w", err)
	}
	return nil
}

// RetireActive flips every active season to inactive.
func (r *SeasonRepository) RetireActive(ctx context.Context, exec sqlx.ExtContext) (int64, error) {
	const query = `UPDATE seasons SET status = $1, updated_at = $2 WHERE status = $3`
	res, err := r.exec(exec).ExecContext(ctx, query, models.SeasonStatusInactive, time.Now().UTC(), models.SeasonStatusActive)
	if err != nil {
		return 0, fmt.Errorf("retire active seasons: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected, nil
}
