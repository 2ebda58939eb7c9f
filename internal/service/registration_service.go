package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/school-registry/internal/dto"
	"github.com/noah-isme/school-registry/internal/models"
	"github.com/noah-isme/school-registry/pkg/database"
	appErrors "github.com/noah-isme/school-registry/pkg/errors"
)

type registrationRepository interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id int64) (*models.ClassRegistration, error)
	LockByID(ctx context.Context, tx sqlx.ExtContext, id int64) (*models.ClassRegistration, error)
	FindActiveForStudent(ctx context.Context, exec sqlx.ExtContext, studentID, seasonID, arrangementID int64) (*models.ClassRegistration, error)
	CountActive(ctx context.Context, exec sqlx.ExtContext, arrangementID int64) (int, error)
	ExistsActive(ctx context.Context, exec sqlx.ExtContext, studentID, seasonID, arrangementID int64) (bool, error)
	Create(ctx context.Context, exec sqlx.ExtContext, reg *models.ClassRegistration) error
	Move(ctx context.Context, exec sqlx.ExtContext, id, arrangementID, classID int64, at time.Time) error
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id int64, status, previous models.RegistrationStatus, at time.Time) error
	Delete(ctx context.Context, exec sqlx.ExtContext, id int64) error
	ListActiveByArrangement(ctx context.Context, exec sqlx.ExtContext, arrangementID int64) ([]models.ClassRegistration, error)
	List(ctx context.Context, filter models.RegistrationFilter) ([]models.ClassRegistration, int, error)
}

type arrangementLocker interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id int64) (*models.Arrangement, error)
	LockByID(ctx context.Context, tx sqlx.ExtContext, id int64) (*models.Arrangement, error)
}

type balanceWriter interface {
	Create(ctx context.Context, exec sqlx.ExtContext, b *models.FamilyBalance) error
	LockByID(ctx context.Context, tx sqlx.ExtContext, id int64) (*models.FamilyBalance, error)
	UpdateAmounts(ctx context.Context, exec sqlx.ExtContext, b *models.FamilyBalance) error
}

type studentLookup interface {
	FindStudent(ctx context.Context, exec sqlx.ExtContext, id int64) (*models.Student, error)
}

// RegistrationService books, moves and cancels class registrations. Every
// mutating call runs in one transaction together with its ledger effect.
type RegistrationService struct {
	registrations registrationRepository
	arrangements  arrangementLocker
	seasons       seasonLookup
	balances      balanceWriter
	students      studentLookup
	tx            txRunner
	metrics       *MetricsService
	validator     *validator.Validate
	logger        *zap.Logger
	now           func() time.Time
}

// NewRegistrationService wires the registration engine.
func NewRegistrationService(
	registrations registrationRepository,
	arrangements arrangementLocker,
	seasons seasonLookup,
	balances balanceWriter,
	students studentLookup,
	tx txProvider,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg WorkflowConfig,
) *RegistrationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RegistrationService{
		registrations: registrations,
		arrangements:  arrangements,
		seasons:       seasons,
		balances:      balances,
		students:      students,
		tx:            txRunner{provider: tx, isolation: cfg.Isolation},
		metrics:       metrics,
		validator:     validate,
		logger:        logger,
		now:           cfg.clock(),
	}
}

// Enroll books a student into a scheduled arrangement and charges the family.
func (s *RegistrationService) Enroll(ctx context.Context, actor models.Actor, req dto.EnrollRequest) (reg *models.ClassRegistration, err error) {
	defer func() { s.metrics.RecordRegistration("enroll", err) }()

	if err = RequireRole(actor, models.RoleAdmin, models.RoleFamily); err != nil {
		return nil, err
	}
	if err = s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enroll payload")
	}

	now := s.now()
	err = s.tx.run(ctx, func(tx *sqlx.Tx) error {
		season, err := s.loadSeason(ctx, tx, req.SeasonID)
		if err != nil {
			return err
		}
		if window := models.Classify(now, *season); !window.Open() {
			return appErrors.Clone(appErrors.ErrRegistrationWindowClosed, "registration for "+season.Name+" is "+string(window))
		}

		student, err := s.students.FindStudent(ctx, tx, req.StudentID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "student not found")
			}
			return internalError(err, "failed to load student")
		}
		if err := requireFamilyAccess(actor, student.FamilyID); err != nil {
			return err
		}

		arrangement, err := s.lockArrangement(ctx, tx, req.ArrangementID, season.ID)
		if err != nil {
			return err
		}
		switch v := arrangement.Variant().(type) {
		case models.Placeholder:
			if !actor.IsAdmin() {
				return appErrors.Clone(appErrors.ErrInvalidArrangementReference, "registration class cannot be booked directly")
			}
		case models.Scheduled:
			active, err := s.registrations.CountActive(ctx, tx, arrangement.ID)
			if err != nil {
				return internalError(err, "failed to count registrations")
			}
			if !v.HasRoom(active) {
				return appErrors.Clone(appErrors.ErrCapacityExceeded, "")
			}
		}

		exists, err := s.registrations.ExistsActive(ctx, tx, student.ID, season.ID, arrangement.ID)
		if err != nil {
			return internalError(err, "failed to check registration")
		}
		if exists {
			return appErrors.Clone(appErrors.ErrDuplicateRegistration, "")
		}

		price := models.SelectPrice(*arrangement, *season)
		charge := models.NewChargeRow(student.FamilyID, season.ID, price)
		if err := s.balances.Create(ctx, tx, charge); err != nil {
			return internalError(err, "failed to record balance")
		}

		reg = &models.ClassRegistration{
			StudentID:     student.ID,
			FamilyID:      student.FamilyID,
			SeasonID:      season.ID,
			ArrangementID: arrangement.ID,
			ClassID:       arrangement.ClassID,
			Status:        models.RegistrationSubmitted,
			BalanceID:     charge.ID,
		}
		reg.RecordCharge(price)
		if err := s.registrations.Create(ctx, tx, reg); err != nil {
			if database.IsUniqueViolation(err, "uq_class_registrations_active") {
				return appErrors.Clone(appErrors.ErrDuplicateRegistration, "")
			}
			return internalError(err, "failed to create registration")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("registration enrolled",
		zap.Int64("registration_id", reg.ID),
		zap.Int64("student_id", reg.StudentID),
		zap.Int64("arrangement_id", reg.ArrangementID),
		zap.Int64("balance_id", reg.BalanceID),
	)
	return reg, nil
}

type plannedMove struct {
	registration *models.ClassRegistration
	to           *models.Arrangement
}

// Distribute moves students from placeholders into scheduled sections. The
// batch is validated in full before any row changes; one bad move aborts all.
func (s *RegistrationService) Distribute(ctx context.Context, actor models.Actor, req dto.DistributeRequest) (result *dto.BatchResult, err error) {
	defer func() { s.metrics.RecordRegistration("distribute", err) }()

	if err = RequireRole(actor, models.RoleAdmin); err != nil {
		return nil, err
	}
	if err = s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid distribute payload")
	}
	for _, move := range req.Moves {
		if move.ToArrangementID == 0 {
			return nil, appErrors.Clone(appErrors.ErrInvalidArrangementReference, "destination arrangement is required")
		}
		if move.ToArrangementID == move.FromArrangementID {
			return nil, appErrors.Clone(appErrors.ErrValidation, "move must change arrangement")
		}
	}

	now := s.now()
	err = s.tx.run(ctx, func(tx *sqlx.Tx) error {
		if _, err := s.loadSeason(ctx, tx, req.SeasonID); err != nil {
			return err
		}

		destinations, err := s.lockDestinations(ctx, tx, req)
		if err != nil {
			return err
		}

		occupancy := make(map[int64]int, len(destinations))
		for id := range destinations {
			count, err := s.registrations.CountActive(ctx, tx, id)
			if err != nil {
				return internalError(err, "failed to count registrations")
			}
			occupancy[id] = count
		}

		seen := make(map[int64]struct{}, len(req.Moves))
		plan := make([]plannedMove, 0, len(req.Moves))
		for _, move := range req.Moves {
			reg, err := s.registrations.FindActiveForStudent(ctx, tx, move.StudentID, req.SeasonID, move.FromArrangementID)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return appErrors.Clone(appErrors.ErrRegistrationNotFound, "student has no active registration in source arrangement")
				}
				return internalError(err, "failed to load registration")
			}
			if _, dup := seen[reg.ID]; dup {
				return appErrors.Clone(appErrors.ErrValidation, "registration appears twice in batch")
			}
			seen[reg.ID] = struct{}{}

			to := destinations[move.ToArrangementID]
			scheduled, ok := to.Variant().(models.Scheduled)
			if !ok {
				return appErrors.Clone(appErrors.ErrInvalidArrangementReference, "cannot distribute into a registration class")
			}
			if !scheduled.HasRoom(occupancy[to.ID]) {
				return appErrors.Clone(appErrors.ErrCapacityExceeded, "")
			}
			occupancy[to.ID]++
			if _, tracked := occupancy[reg.ArrangementID]; tracked {
				occupancy[reg.ArrangementID]--
			}
			plan = append(plan, plannedMove{registration: reg, to: to})
		}

		for _, p := range plan {
			if err := s.registrations.Move(ctx, tx, p.registration.ID, p.to.ID, p.to.ClassID, now); err != nil {
				return internalError(err, "failed to move registration")
			}
		}
		result = &dto.BatchResult{Moved: len(plan)}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("registrations distributed", zap.Int64("season_id", req.SeasonID), zap.Int("moved", result.Moved))
	return result, nil
}

// lockDestinations locks every destination in ascending id order so that
// concurrent batches acquire row locks consistently.
func (s *RegistrationService) lockDestinations(ctx context.Context, tx *sqlx.Tx, req dto.DistributeRequest) (map[int64]*models.Arrangement, error) {
	ids := make([]int64, 0, len(req.Moves))
	for _, move := range req.Moves {
		ids = append(ids, move.ToArrangementID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	locked := make(map[int64]*models.Arrangement, len(ids))
	for _, id := range ids {
		if _, ok := locked[id]; ok {
			continue
		}
		arrangement, err := s.lockArrangement(ctx, tx, id, req.SeasonID)
		if err != nil {
			return nil, err
		}
		locked[id] = arrangement
	}
	return locked, nil
}

// Rollback moves every active student of the listed arrangements back to the placeholder.
func (s *RegistrationService) Rollback(ctx context.Context, actor models.Actor, req dto.RollbackRequest) (result *dto.BatchResult, err error) {
	defer func() { s.metrics.RecordRegistration("rollback", err) }()

	if err = RequireRole(actor, models.RoleAdmin); err != nil {
		return nil, err
	}
	if req.PlaceholderID == 0 {
		return nil, appErrors.Clone(appErrors.ErrInvalidArrangementReference, "placeholder arrangement is required")
	}
	if err = s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid rollback payload")
	}

	now := s.now()
	err = s.tx.run(ctx, func(tx *sqlx.Tx) error {
		placeholder, err := s.lockArrangement(ctx, tx, req.PlaceholderID, 0)
		if err != nil {
			return err
		}
		if _, ok := placeholder.Variant().(models.Placeholder); !ok {
			return appErrors.Clone(appErrors.ErrInvalidArrangementReference, "rollback target is not a registration class")
		}

		moved := 0
		for _, id := range req.ArrangementIDs {
			if id == 0 || id == placeholder.ID {
				return appErrors.Clone(appErrors.ErrInvalidArrangementReference, "invalid classroom arrangement")
			}
			if _, err := s.lockArrangement(ctx, tx, id, placeholder.SeasonID); err != nil {
				return err
			}
			regs, err := s.registrations.ListActiveByArrangement(ctx, tx, id)
			if err != nil {
				return internalError(err, "failed to list registrations")
			}
			for _, reg := range regs {
				if err := s.registrations.Move(ctx, tx, reg.ID, placeholder.ID, placeholder.ClassID, now); err != nil {
					return internalError(err, "failed to move registration")
				}
				moved++
			}
		}
		result = &dto.BatchResult{Moved: moved}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("registrations rolled back", zap.Int64("placeholder_id", req.PlaceholderID), zap.Int("moved", result.Moved))
	return result, nil
}

// Drop cancels a registration. Before the season's cancel deadline the row is
// deleted and the price charged at enrollment is refunded on the linked ledger
// row; from the deadline on it is marked dropout without refund.
func (s *RegistrationService) Drop(ctx context.Context, actor models.Actor, registrationID int64) (result *dto.DropResult, err error) {
	defer func() { s.metrics.RecordRegistration("drop", err) }()

	if err = RequireRole(actor, models.RoleAdmin, models.RoleFamily); err != nil {
		return nil, err
	}

	now := s.now()
	err = s.tx.run(ctx, func(tx *sqlx.Tx) error {
		reg, err := s.registrations.LockByID(ctx, tx, registrationID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrRegistrationNotFound, "")
			}
			return internalError(err, "failed to load registration")
		}
		if err := requireFamilyAccess(actor, reg.FamilyID); err != nil {
			return err
		}
		if !reg.Status.Active() {
			return appErrors.Clone(appErrors.ErrConflict, "registration is already "+reg.Status.String())
		}
		season, err := s.loadSeason(ctx, tx, reg.SeasonID)
		if err != nil {
			return err
		}

		if !now.Before(season.CancelDeadline) {
			if err := s.registrations.UpdateStatus(ctx, tx, reg.ID, models.DropoutStatus(*season), reg.Status, now); err != nil {
				return internalError(err, "failed to mark dropout")
			}
			result = &dto.DropResult{RegistrationID: reg.ID, Outcome: models.DropMarkedDropout}
			return nil
		}

		arrangement, err := s.arrangements.FindByID(ctx, tx, reg.ArrangementID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrInvalidArrangementReference, "registration arrangement not found")
			}
			return internalError(err, "failed to load arrangement")
		}
		price := reg.RefundPrice(*arrangement, *season)

		if reg.BalanceID == 0 {
			return appErrors.Clone(appErrors.ErrBalanceNotFound, "registration has no linked balance")
		}
		balance, err := s.balances.LockByID(ctx, tx, reg.BalanceID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrBalanceNotFound, "")
			}
			return internalError(err, "failed to load balance")
		}
		balance.ApplyPrice(price, -1)
		if err := s.balances.UpdateAmounts(ctx, tx, balance); err != nil {
			return internalError(err, "failed to refund balance")
		}
		if err := s.registrations.Delete(ctx, tx, reg.ID); err != nil {
			return internalError(err, "failed to delete registration")
		}
		result = &dto.DropResult{RegistrationID: reg.ID, Outcome: models.DropCancelledWithRefund, Refund: &price}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("registration dropped", zap.Int64("registration_id", registrationID), zap.String("outcome", string(result.Outcome)))
	return result, nil
}

// Get returns one registration visible to the actor.
func (s *RegistrationService) Get(ctx context.Context, actor models.Actor, id int64) (*models.ClassRegistration, error) {
	reg, err := s.registrations.FindByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrRegistrationNotFound, "")
		}
		return nil, internalError(err, "failed to load registration")
	}
	if err := requireFamilyAccess(actor, reg.FamilyID); err != nil {
		return nil, err
	}
	return reg, nil
}

// List returns registrations; families only see their own.
func (s *RegistrationService) List(ctx context.Context, actor models.Actor, query dto.RegistrationQuery) ([]models.ClassRegistration, *models.Pagination, error) {
	filter := models.RegistrationFilter{
		FamilyID:      query.FamilyID,
		StudentID:     query.StudentID,
		SeasonID:      query.SeasonID,
		ArrangementID: query.ArrangementID,
		Status:        models.RegistrationStatus(query.Status),
		Page:          query.Page,
		PageSize:      query.PageSize,
	}
	if !actor.IsAdmin() {
		if actor.Role != models.RoleFamily || actor.FamilyID == 0 {
			return nil, nil, appErrors.Clone(appErrors.ErrAuthorizationDenied, "")
		}
		filter.FamilyID = actor.FamilyID
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	regs, total, err := s.registrations.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list registrations")
	}
	return regs, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

func (s *RegistrationService) loadSeason(ctx context.Context, exec sqlx.ExtContext, id int64) (*models.Season, error) {
	season, err := s.seasons.FindByID(ctx, exec, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "season not found")
		}
		return nil, internalError(err, "failed to load season")
	}
	return season, nil
}

// lockArrangement locks an arrangement; a non-zero seasonID must match its season.
func (s *RegistrationService) lockArrangement(ctx context.Context, tx *sqlx.Tx, id, seasonID int64) (*models.Arrangement, error) {
	arrangement, err := s.arrangements.LockByID(ctx, tx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidArrangementReference, "arrangement not found")
		}
		return nil, internalError(err, "failed to load arrangement")
	}
	if seasonID != 0 && arrangement.SeasonID != seasonID {
		return nil, appErrors.Clone(appErrors.ErrInvalidArrangementReference, "arrangement belongs to another season")
	}
	return arrangement, nil
}
