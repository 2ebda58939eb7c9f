package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/school-registry/internal/dto"
	"github.com/noah-isme/school-registry/internal/models"
	appErrors "github.com/noah-isme/school-registry/pkg/errors"
)

type arrangementRepository interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id int64) (*models.Arrangement, error)
	List(ctx context.Context, filter models.ArrangementFilter) ([]models.Arrangement, error)
	Create(ctx context.Context, exec sqlx.ExtContext, a *models.Arrangement) error
	Update(ctx context.Context, exec sqlx.ExtContext, a *models.Arrangement) error
	Roster(ctx context.Context, arrangementID int64) ([]models.RosterEntry, error)
}

type seasonLookup interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id int64) (*models.Season, error)
}

// ArrangementService manages the per-season class catalog.
type ArrangementService struct {
	repo      arrangementRepository
	seasons   seasonLookup
	tx        txRunner
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewArrangementService constructs an ArrangementService.
func NewArrangementService(repo arrangementRepository, seasons seasonLookup, tx txProvider, cache *CacheService, validate *validator.Validate, logger *zap.Logger, cfg WorkflowConfig) *ArrangementService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArrangementService{
		repo:      repo,
		seasons:   seasons,
		tx:        txRunner{provider: tx, isolation: cfg.Isolation},
		cache:     cache,
		validator: validate,
		logger:    logger,
		now:       cfg.clock(),
	}
}

// List returns a season's catalog. Unfiltered season listings are cached.
func (s *ArrangementService) List(ctx context.Context, filter models.ArrangementFilter) ([]models.Arrangement, error) {
	cacheable := filter.SeasonID != 0 && filter.ClassID == 0 && filter.TeacherID == 0 && filter.RegClasses == nil
	if cacheable {
		var cached []models.Arrangement
		if hit, _ := s.cache.Get(ctx, catalogCacheKey(filter.SeasonID), &cached); hit {
			return cached, nil
		}
	}
	arrangements, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, internalError(err, "failed to list arrangements")
	}
	if cacheable {
		_ = s.cache.Set(ctx, catalogCacheKey(filter.SeasonID), arrangements, 0)
	}
	return arrangements, nil
}

// Get returns one arrangement.
func (s *ArrangementService) Get(ctx context.Context, id int64) (*models.Arrangement, error) {
	arrangement, err := s.repo.FindByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "arrangement not found")
		}
		return nil, internalError(err, "failed to load arrangement")
	}
	return arrangement, nil
}

// Quote returns the price a registration into the arrangement would be charged.
func (s *ArrangementService) Quote(ctx context.Context, id int64) (*models.Price, error) {
	arrangement, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	season, err := s.seasons.FindByID(ctx, nil, arrangement.SeasonID)
	if err != nil {
		return nil, internalError(err, "failed to load arrangement season")
	}
	price := models.SelectPrice(*arrangement, *season)
	return &price, nil
}

// Roster lists the students seated in an arrangement.
func (s *ArrangementService) Roster(ctx context.Context, actor models.Actor, id int64) ([]models.RosterEntry, error) {
	if err := RequireRole(actor, models.RoleAdmin, models.RoleTeacher); err != nil {
		return nil, err
	}
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	entries, err := s.repo.Roster(ctx, id)
	if err != nil {
		return nil, internalError(err, "failed to load roster")
	}
	return entries, nil
}

// Create adds an arrangement to a season's catalog.
func (s *ArrangementService) Create(ctx context.Context, actor models.Actor, req dto.CreateArrangementRequest) (*models.Arrangement, error) {
	if err := RequireRole(actor, models.RoleAdmin); err != nil {
		return nil, err
	}
	if err := s.validatePayload(req); err != nil {
		return nil, err
	}

	arrangement := &models.Arrangement{SeasonID: req.SeasonID}
	applyArrangementPayload(arrangement, req.ArrangementPayload)

	err := s.tx.run(ctx, func(tx *sqlx.Tx) error {
		if _, err := s.lookupSeason(ctx, tx, req.SeasonID); err != nil {
			return err
		}
		if err := s.repo.Create(ctx, tx, arrangement); err != nil {
			return internalError(err, "failed to create arrangement")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cache.InvalidateSeason(ctx, arrangement.SeasonID)
	s.logger.Info("arrangement created", zap.Int64("arrangement_id", arrangement.ID), zap.Int64("season_id", arrangement.SeasonID))
	return arrangement, nil
}

// Update edits an arrangement. Edits are refused while the season's registration window is open.
func (s *ArrangementService) Update(ctx context.Context, actor models.Actor, id int64, req dto.UpdateArrangementRequest) (*models.Arrangement, error) {
	if err := RequireRole(actor, models.RoleAdmin); err != nil {
		return nil, err
	}
	if err := s.validatePayload(req); err != nil {
		return nil, err
	}

	var arrangement *models.Arrangement
	err := s.tx.run(ctx, func(tx *sqlx.Tx) error {
		current, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "arrangement not found")
			}
			return internalError(err, "failed to load arrangement")
		}
		season, err := s.lookupSeason(ctx, tx, current.SeasonID)
		if err != nil {
			return err
		}
		if models.Classify(s.now(), *season).Open() {
			return appErrors.Clone(appErrors.ErrConflict, "arrangement cannot be edited while registration is open")
		}
		applyArrangementPayload(current, req.ArrangementPayload)
		if err := s.repo.Update(ctx, tx, current); err != nil {
			return internalError(err, "failed to update arrangement")
		}
		arrangement = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cache.InvalidateSeason(ctx, arrangement.SeasonID)
	return arrangement, nil
}

func (s *ArrangementService) lookupSeason(ctx context.Context, exec sqlx.ExtContext, id int64) (*models.Season, error) {
	season, err := s.seasons.FindByID(ctx, exec, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "season not found")
		}
		return nil, internalError(err, "failed to load season")
	}
	return season, nil
}

func (s *ArrangementService) validatePayload(req interface{}) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid arrangement payload")
	}
	var p dto.ArrangementPayload
	switch v := req.(type) {
	case dto.CreateArrangementRequest:
		p = v.ArrangementPayload
	case dto.UpdateArrangementRequest:
		p = v.ArrangementPayload
	}
	for _, amount := range []decimal.Decimal{p.TuitionW, p.BookFeeW, p.SpecialFeeW, p.TuitionH, p.BookFeeH, p.SpecialFeeH} {
		if amount.IsNegative() {
			return appErrors.Clone(appErrors.ErrValidation, "prices must not be negative")
		}
	}
	return nil
}

func applyArrangementPayload(a *models.Arrangement, p dto.ArrangementPayload) {
	a.ClassID = p.ClassID
	a.TeacherID = p.TeacherID
	a.RoomID = p.RoomID
	a.TimeSlotID = p.TimeSlotID
	a.SeatLimit = p.SeatLimit
	a.AgeLimit = p.AgeLimit
	a.TuitionW = p.TuitionW
	a.BookFeeW = p.BookFeeW
	a.SpecialFeeW = p.SpecialFeeW
	a.TuitionH = p.TuitionH
	a.BookFeeH = p.BookFeeH
	a.SpecialFeeH = p.SpecialFeeH
	a.IsRegClass = p.IsRegClass
	a.Notes = p.Notes
}
