package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/school-registry/internal/dto"
	"github.com/noah-isme/school-registry/internal/models"
	"github.com/noah-isme/school-registry/pkg/database"
	appErrors "github.com/noah-isme/school-registry/pkg/errors"
)

type regChangeRepository interface {
	LockByID(ctx context.Context, tx sqlx.ExtContext, id int64) (*models.RegChangeRequest, error)
	HasPending(ctx context.Context, exec sqlx.ExtContext, registrationID int64) (bool, error)
	Create(ctx context.Context, exec sqlx.ExtContext, req *models.RegChangeRequest) error
	Process(ctx context.Context, exec sqlx.ExtContext, id int64, status models.ChangeRequestStatus, processedBy int64, at time.Time) error
	DeletePending(ctx context.Context, exec sqlx.ExtContext, registrationID, familyID int64) (int64, error)
	List(ctx context.Context, filter models.RegChangeFilter) ([]models.RegChangeRequest, int, error)
}

type changeRegistrationStore interface {
	LockByID(ctx context.Context, tx sqlx.ExtContext, id int64) (*models.ClassRegistration, error)
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id int64, status, previous models.RegistrationStatus, at time.Time) error
}

type balanceCreator interface {
	Create(ctx context.Context, exec sqlx.ExtContext, b *models.FamilyBalance) error
}

// RegChangeService runs the family change-request workflow:
// pending -> approved | rejected, with undo while pending.
type RegChangeService struct {
	requests      regChangeRepository
	registrations changeRegistrationStore
	arrangements  arrangementLocker
	seasons       seasonLookup
	balances      balanceCreator
	notifier      Notifier
	tx            txRunner
	metrics       *MetricsService
	validator     *validator.Validate
	logger        *zap.Logger
	now           func() time.Time
}

// NewRegChangeService wires the change-request workflow. notifier may be nil.
func NewRegChangeService(
	requests regChangeRepository,
	registrations changeRegistrationStore,
	arrangements arrangementLocker,
	seasons seasonLookup,
	balances balanceCreator,
	notifier Notifier,
	tx txProvider,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg WorkflowConfig,
) *RegChangeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RegChangeService{
		requests:      requests,
		registrations: registrations,
		arrangements:  arrangements,
		seasons:       seasons,
		balances:      balances,
		notifier:      notifier,
		tx:            txRunner{provider: tx, isolation: cfg.Isolation},
		metrics:       metrics,
		validator:     validate,
		logger:        logger,
		now:           cfg.clock(),
	}
}

// Request files a pending change request for one of the family's registrations.
func (s *RegChangeService) Request(ctx context.Context, actor models.Actor, req dto.CreateChangeRequest) (*models.RegChangeRequest, error) {
	if err := RequireRole(actor, models.RoleFamily); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid change request payload")
	}

	var created *models.RegChangeRequest
	err := s.tx.run(ctx, func(tx *sqlx.Tx) error {
		reg, err := s.registrations.LockByID(ctx, tx, req.RegistrationID)
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
			return appErrors.Clone(appErrors.ErrConflict, "registration is "+reg.Status.String())
		}

		season, err := s.seasons.FindByID(ctx, tx, reg.SeasonID)
		if err != nil {
			return internalError(err, "failed to load season")
		}
		if window := models.Classify(s.now(), *season); !window.Open() {
			return appErrors.Clone(appErrors.ErrRegistrationWindowClosed, "changes are not accepted while registration is "+string(window))
		}

		pending, err := s.requests.HasPending(ctx, tx, reg.ID)
		if err != nil {
			return internalError(err, "failed to check pending requests")
		}
		if pending {
			return appErrors.Clone(appErrors.ErrRequestAlreadyPending, "")
		}

		if req.TargetArrangementID != 0 {
			target, err := s.arrangements.FindByID(ctx, tx, req.TargetArrangementID)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return appErrors.Clone(appErrors.ErrInvalidArrangementReference, "target arrangement not found")
				}
				return internalError(err, "failed to load target arrangement")
			}
			if target.SeasonID != reg.SeasonID {
				return appErrors.Clone(appErrors.ErrInvalidArrangementReference, "target arrangement belongs to another season")
			}
		}

		created = &models.RegChangeRequest{
			RegistrationID:      reg.ID,
			FamilyID:            reg.FamilyID,
			StudentID:           reg.StudentID,
			SeasonID:            reg.SeasonID,
			TargetArrangementID: req.TargetArrangementID,
			Status:              models.ChangeRequestPending,
			Note:                req.Note,
		}
		if err := s.requests.Create(ctx, tx, created); err != nil {
			if database.IsUniqueViolation(err, "uq_reg_change_pending") {
				return appErrors.Clone(appErrors.ErrRequestAlreadyPending, "")
			}
			return internalError(err, "failed to create change request")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordChangeRequest("request")
	s.logger.Info("change request filed", zap.Int64("request_id", created.ID), zap.Int64("registration_id", created.RegistrationID))
	return created, nil
}

// Approve accepts a pending request. The registration gives up its seat and
// a negative drop-out row refunds its price.
func (s *RegChangeService) Approve(ctx context.Context, actor models.Actor, requestID int64, req dto.ApproveChangeRequest) (*models.RegChangeRequest, error) {
	if err := RequireRole(actor, models.RoleAdmin); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid approval payload")
	}

	now := s.now()
	var approved *models.RegChangeRequest
	err := s.tx.run(ctx, func(tx *sqlx.Tx) error {
		request, err := s.lockPending(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if request.RegistrationID != req.RegistrationID {
			return appErrors.Clone(appErrors.ErrConflict, "request does not belong to registration")
		}

		reg, err := s.registrations.LockByID(ctx, tx, request.RegistrationID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrRegistrationNotFound, "")
			}
			return internalError(err, "failed to load registration")
		}
		arrangement, err := s.arrangements.FindByID(ctx, tx, reg.ArrangementID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrInvalidArrangementReference, "registration arrangement not found")
			}
			return internalError(err, "failed to load arrangement")
		}
		season, err := s.seasons.FindByID(ctx, tx, reg.SeasonID)
		if err != nil {
			return internalError(err, "failed to load season")
		}

		if err := s.requests.Process(ctx, tx, request.ID, models.ChangeRequestApproved, actor.UserID, now); err != nil {
			return internalError(err, "failed to approve change request")
		}

		refund := models.NewDropOutRow(reg.FamilyID, reg.SeasonID, reg.RefundPrice(*arrangement, *season),
			fmt.Sprintf("change request %d for registration %d", request.ID, reg.ID))
		if err := s.balances.Create(ctx, tx, refund); err != nil {
			return internalError(err, "failed to record refund")
		}

		if reg.Status.Active() {
			if err := s.registrations.UpdateStatus(ctx, tx, reg.ID, models.RegistrationTransferred, reg.Status, now); err != nil {
				return internalError(err, "failed to release registration")
			}
		}

		processedBy := actor.UserID
		request.Status = models.ChangeRequestApproved
		request.ProcessedBy = &processedBy
		request.ProcessedAt = &now
		approved = request
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterDecision(ctx, *approved)
	return approved, nil
}

// Reject declines a pending request without ledger effect.
func (s *RegChangeService) Reject(ctx context.Context, actor models.Actor, requestID int64) (*models.RegChangeRequest, error) {
	if err := RequireRole(actor, models.RoleAdmin); err != nil {
		return nil, err
	}

	now := s.now()
	var rejected *models.RegChangeRequest
	err := s.tx.run(ctx, func(tx *sqlx.Tx) error {
		request, err := s.lockPending(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if err := s.requests.Process(ctx, tx, request.ID, models.ChangeRequestRejected, actor.UserID, now); err != nil {
			return internalError(err, "failed to reject change request")
		}
		processedBy := actor.UserID
		request.Status = models.ChangeRequestRejected
		request.ProcessedBy = &processedBy
		request.ProcessedAt = &now
		rejected = request
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterDecision(ctx, *rejected)
	return rejected, nil
}

// Undo withdraws the family's pending request for a registration. Repeating it is a no-op.
func (s *RegChangeService) Undo(ctx context.Context, actor models.Actor, registrationID int64) (bool, error) {
	if err := RequireRole(actor, models.RoleFamily); err != nil {
		return false, err
	}
	if actor.FamilyID == 0 {
		return false, appErrors.Clone(appErrors.ErrAuthorizationDenied, "actor is not linked to a family")
	}

	var removed int64
	err := s.tx.run(ctx, func(tx *sqlx.Tx) error {
		var err error
		removed, err = s.requests.DeletePending(ctx, tx, registrationID, actor.FamilyID)
		if err != nil {
			return internalError(err, "failed to withdraw change request")
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if removed > 0 {
		s.metrics.RecordChangeRequest("undo")
		s.logger.Info("change request withdrawn", zap.Int64("registration_id", registrationID), zap.Int64("family_id", actor.FamilyID))
	}
	return removed > 0, nil
}

// List returns change requests; families only see their own.
func (s *RegChangeService) List(ctx context.Context, actor models.Actor, filter models.RegChangeFilter) ([]models.RegChangeRequest, *models.Pagination, error) {
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
	items, total, err := s.requests.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list change requests")
	}
	return items, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

func (s *RegChangeService) lockPending(ctx context.Context, tx *sqlx.Tx, requestID int64) (*models.RegChangeRequest, error) {
	request, err := s.requests.LockByID(ctx, tx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "change request not found")
		}
		return nil, internalError(err, "failed to load change request")
	}
	if request.Status != models.ChangeRequestPending {
		return nil, appErrors.Clone(appErrors.ErrConflict, "change request is already "+request.Status.String())
	}
	return request, nil
}

func (s *RegChangeService) afterDecision(ctx context.Context, request models.RegChangeRequest) {
	action := request.Status.String()
	s.metrics.RecordChangeRequest(action)
	s.logger.Info("change request "+action,
		zap.Int64("request_id", request.ID),
		zap.Int64("registration_id", request.RegistrationID),
	)
	if s.notifier != nil {
		s.notifier.ChangeRequestDecided(ctx, request)
	}
}
