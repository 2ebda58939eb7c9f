package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/school-registry/internal/dto"
	"github.com/noah-isme/school-registry/internal/models"
	appErrors "github.com/noah-isme/school-registry/pkg/errors"
)

type seasonRepository interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id int64) (*models.Season, error)
	ListTerms(ctx context.Context, exec sqlx.ExtContext, yearID int64) ([]models.Season, error)
	List(ctx context.Context, filter models.SeasonFilter) ([]models.Season, int, error)
	Create(ctx context.Context, exec sqlx.ExtContext, season *models.Season) error
	Link(ctx context.Context, exec sqlx.ExtContext, id, beginID, relatedID int64) error
	RetireActive(ctx context.Context, exec sqlx.ExtContext) (int64, error)
}

// SeasonService manages academic years, their terms and registration windows.
type SeasonService struct {
	repo      seasonRepository
	tx        txRunner
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewSeasonService constructs a SeasonService.
func NewSeasonService(repo seasonRepository, tx txProvider, cache *CacheService, validate *validator.Validate, logger *zap.Logger, cfg WorkflowConfig) *SeasonService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SeasonService{
		repo:      repo,
		tx:        txRunner{provider: tx, isolation: cfg.Isolation},
		cache:     cache,
		validator: validate,
		logger:    logger,
		now:       cfg.clock(),
	}
}

// Get returns a season, served from cache when possible.
func (s *SeasonService) Get(ctx context.Context, id int64) (*models.Season, error) {
	var cached models.Season
	if hit, _ := s.cache.Get(ctx, seasonCacheKey(id), &cached); hit {
		return &cached, nil
	}
	season, err := s.repo.FindByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "season not found")
		}
		return nil, internalError(err, "failed to load season")
	}
	_ = s.cache.Set(ctx, seasonCacheKey(id), season, 0)
	return season, nil
}

// List returns seasons with pagination metadata.
func (s *SeasonService) List(ctx context.Context, filter models.SeasonFilter) ([]models.Season, *models.Pagination, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	seasons, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list seasons")
	}
	return seasons, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Window classifies the current moment against the season's registration calendar.
func (s *SeasonService) Window(ctx context.Context, id int64) (*dto.SeasonWindowResponse, error) {
	season, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	window := models.Classify(now, *season)
	return &dto.SeasonWindowResponse{SeasonID: season.ID, Window: window, Open: window.Open(), At: now}, nil
}

// ResolveTerms returns the fall and spring terms of a year record.
func (s *SeasonService) ResolveTerms(ctx context.Context, yearID int64) (*dto.SeasonTerms, error) {
	return s.resolveTerms(ctx, nil, yearID)
}

func (s *SeasonService) resolveTerms(ctx context.Context, exec sqlx.ExtContext, yearID int64) (*dto.SeasonTerms, error) {
	year, err := s.repo.FindByID(ctx, exec, yearID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "season not found")
		}
		return nil, internalError(err, "failed to load season")
	}
	if !year.IsYear() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "season is not a year record")
	}
	terms, err := s.repo.ListTerms(ctx, exec, yearID)
	if err != nil {
		return nil, internalError(err, "failed to load season terms")
	}
	if len(terms) != 2 {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "year season must resolve to exactly two terms")
	}
	fall, spring := terms[0], terms[1]
	if year.RelatedSeasonID != spring.ID || spring.RelatedSeasonID != fall.ID {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "year season terms are not linked")
	}
	return &dto.SeasonTerms{Year: *year, Fall: fall, Spring: spring}, nil
}

// StartSemester creates a year with its fall and spring terms and retires the
// previously active seasons, all in one transaction.
func (s *SeasonService) StartSemester(ctx context.Context, actor models.Actor, req dto.StartSemesterRequest) (*dto.SeasonTerms, error) {
	if err := RequireRole(actor, models.RoleAdmin); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid semester payload")
	}
	for _, dates := range []dto.SeasonDates{req.Year, req.Fall, req.Spring} {
		if err := validateCalendar(dates); err != nil {
			return nil, err
		}
	}
	if !req.Fall.StartDate.Before(req.Spring.StartDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "fall term must start before spring term")
	}

	year := seasonFromDates(req.Year)
	fall := seasonFromDates(req.Fall)
	spring := seasonFromDates(req.Spring)

	var retired int64
	err := s.tx.run(ctx, func(tx *sqlx.Tx) error {
		var err error
		if retired, err = s.repo.RetireActive(ctx, tx); err != nil {
			return internalError(err, "failed to retire active seasons")
		}
		for _, season := range []*models.Season{year, fall, spring} {
			if err := s.repo.Create(ctx, tx, season); err != nil {
				return internalError(err, "failed to create season")
			}
		}

		year.BeginSeasonID, year.RelatedSeasonID = year.ID, spring.ID
		fall.BeginSeasonID, fall.RelatedSeasonID = year.ID, spring.ID
		spring.BeginSeasonID, spring.RelatedSeasonID = year.ID, fall.ID
		for _, season := range []*models.Season{year, fall, spring} {
			if err := s.repo.Link(ctx, tx, season.ID, season.BeginSeasonID, season.RelatedSeasonID); err != nil {
				return internalError(err, "failed to link season")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cache.InvalidateAll(ctx)
	s.logger.Info("semester started",
		zap.Int64("year_id", year.ID),
		zap.Int64("fall_id", fall.ID),
		zap.Int64("spring_id", spring.ID),
		zap.Int64("retired", retired),
	)
	return &dto.SeasonTerms{Year: *year, Fall: *fall, Spring: *spring}, nil
}

func validateCalendar(d dto.SeasonDates) error {
	if d.NormalRegDate.Before(d.EarlyRegDate) || d.LateRegDate.Before(d.NormalRegDate) || d.CloseRegDate.Before(d.LateRegDate) {
		return appErrors.Clone(appErrors.ErrValidation, "registration dates of "+d.Name+" must be ordered early, normal, late, close")
	}
	return nil
}

func seasonFromDates(d dto.SeasonDates) *models.Season {
	return &models.Season{
		Name:           d.Name,
		Status:         models.SeasonStatusActive,
		StartDate:      d.StartDate,
		EndDate:        d.EndDate,
		EarlyRegDate:   d.EarlyRegDate,
		NormalRegDate:  d.NormalRegDate,
		LateRegDate:    d.LateRegDate,
		CloseRegDate:   d.CloseRegDate,
		CancelDeadline: d.CancelDeadline,
	}
}
