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
	"github.com/noah-isme/school-registry/pkg/database"
	appErrors "github.com/noah-isme/school-registry/pkg/errors"
	"github.com/noah-isme/school-registry/pkg/payment"
)

type paymentBalanceStore interface {
	LockForFamily(ctx context.Context, tx sqlx.ExtContext, familyID, balanceID int64) (*models.FamilyBalance, error)
	UpdateAmounts(ctx context.Context, exec sqlx.ExtContext, b *models.FamilyBalance) error
	ListByFamilySeason(ctx context.Context, familyID, seasonID int64) ([]models.FamilyBalance, error)
}

type receiptRepository interface {
	ExistsReference(ctx context.Context, exec sqlx.ExtContext, reference string) (bool, error)
	Create(ctx context.Context, exec sqlx.ExtContext, receipt *models.PaymentReceipt) error
	ListByFamilySeason(ctx context.Context, familyID, seasonID int64) ([]models.PaymentReceipt, error)
}

type paidRegistrationStore interface {
	CountActiveByFamilySeason(ctx context.Context, exec sqlx.ExtContext, familyID, seasonID int64) (int, error)
	MarkRegistered(ctx context.Context, exec sqlx.ExtContext, familyID, seasonID, balanceID int64, at time.Time) (int64, error)
}

// paymentInput is a payment normalised from either a check or a gateway capture.
type paymentInput struct {
	balanceID int64
	amount    decimal.Decimal
	reference string
	paidAt    time.Time
	note      string
	source    models.PaymentSource
}

// PaymentService applies payments to family ledger rows.
type PaymentService struct {
	balances      paymentBalanceStore
	receipts      receiptRepository
	registrations paidRegistrationStore
	verifier      payment.Verifier
	notifier      Notifier
	tx            txRunner
	metrics       *MetricsService
	validator     *validator.Validate
	logger        *zap.Logger
	now           func() time.Time
}

// NewPaymentService wires payment application. verifier and notifier may be nil.
func NewPaymentService(
	balances paymentBalanceStore,
	receipts receiptRepository,
	registrations paidRegistrationStore,
	verifier payment.Verifier,
	notifier Notifier,
	tx txProvider,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg WorkflowConfig,
) *PaymentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentService{
		balances:      balances,
		receipts:      receipts,
		registrations: registrations,
		verifier:      verifier,
		notifier:      notifier,
		tx:            txRunner{provider: tx, isolation: cfg.Isolation},
		metrics:       metrics,
		validator:     validate,
		logger:        logger,
		now:           cfg.clock(),
	}
}

// ApplyCheck records a check or manual payment against a family's ledger row
// and confirms the family's submitted registrations for that season.
func (s *PaymentService) ApplyCheck(ctx context.Context, actor models.Actor, familyID int64, req dto.CheckPaymentRequest) (*dto.PaymentResult, error) {
	if err := RequireRole(actor, models.RoleAdmin); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment payload")
	}
	return s.apply(ctx, actor, familyID, paymentInput{
		balanceID: req.BalanceID,
		amount:    req.Amount,
		reference: req.Reference,
		paidAt:    req.PaidAt,
		note:      req.Note,
		source:    models.PaymentSourceCheck,
	})
}

// ApplyCapture verifies a gateway order and applies the captured amount.
func (s *PaymentService) ApplyCapture(ctx context.Context, actor models.Actor, familyID int64, req dto.CapturePaymentRequest) (*dto.PaymentResult, error) {
	if err := requireFamilyAccess(actor, familyID); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid capture payload")
	}
	if s.verifier == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "payment gateway is not configured")
	}

	capture, err := s.verifier.Verify(ctx, req.OrderID)
	if err != nil {
		s.logger.Warn("payment capture lookup failed", zap.String("order_id", req.OrderID), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrPaymentNotCompleted.Code, appErrors.ErrPaymentNotCompleted.Status, "unable to verify payment capture")
	}
	if capture.Status != payment.StatusCompleted {
		return nil, appErrors.Clone(appErrors.ErrPaymentNotCompleted, "capture is "+string(capture.Status))
	}

	return s.apply(ctx, actor, familyID, paymentInput{
		balanceID: req.BalanceID,
		amount:    capture.Amount,
		reference: capture.ID,
		note:      "order " + capture.OrderID,
		source:    models.PaymentSourceGateway,
	})
}

func (s *PaymentService) apply(ctx context.Context, actor models.Actor, familyID int64, in paymentInput) (*dto.PaymentResult, error) {
	if familyID <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "family id is required")
	}
	if in.amount.IsZero() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "payment amount must not be zero")
	}
	now := s.now()
	if in.paidAt.IsZero() {
		in.paidAt = now
	}

	result := &dto.PaymentResult{}
	err := s.tx.run(ctx, func(tx *sqlx.Tx) error {
		balance, err := s.balances.LockForFamily(ctx, tx, familyID, in.balanceID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrBalanceNotFound, "")
			}
			return internalError(err, "failed to load balance")
		}

		active, err := s.registrations.CountActiveByFamilySeason(ctx, tx, familyID, balance.SeasonID)
		if err != nil {
			return internalError(err, "failed to count registrations")
		}
		if active == 0 {
			return appErrors.Clone(appErrors.ErrRegistrationNotFound, "family has no active registration in season")
		}

		exists, err := s.receipts.ExistsReference(ctx, tx, in.reference)
		if err != nil {
			return internalError(err, "failed to check payment reference")
		}
		if exists {
			return appErrors.Clone(appErrors.ErrDuplicatePayment, "")
		}

		balance.ApplyPayment(in.amount)
		balance.SettleStatus()
		if err := s.balances.UpdateAmounts(ctx, tx, balance); err != nil {
			return internalError(err, "failed to update balance")
		}

		receipt := models.PaymentReceipt{
			BalanceID: balance.ID,
			FamilyID:  familyID,
			Amount:    in.amount,
			Reference: in.reference,
			PaidAt:    in.paidAt,
			Note:      in.note,
			Source:    in.source,
			CreatedBy: actor.UserID,
		}
		if err := s.receipts.Create(ctx, tx, &receipt); err != nil {
			if database.IsUniqueViolation(err, "uq_payment_receipts_reference") {
				return appErrors.Clone(appErrors.ErrDuplicatePayment, "")
			}
			return internalError(err, "failed to record receipt")
		}

		updated, err := s.registrations.MarkRegistered(ctx, tx, familyID, balance.SeasonID, balance.ID, now)
		if err != nil {
			return internalError(err, "failed to confirm registrations")
		}

		result.Receipt = receipt
		result.Balance = *balance
		result.RegistrationsUpdated = updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordPayment(string(in.source))
	s.logger.Info("payment applied",
		zap.Int64("family_id", familyID),
		zap.Int64("balance_id", result.Balance.ID),
		zap.String("amount", in.amount.StringFixed(2)),
		zap.String("source", string(in.source)),
		zap.Int64("registrations_updated", result.RegistrationsUpdated),
	)
	if s.notifier != nil {
		s.notifier.PaymentApplied(ctx, result.Receipt, result.Balance)
	}
	return result, nil
}

// Statement returns a family's ledger rows and receipts for one season.
func (s *PaymentService) Statement(ctx context.Context, actor models.Actor, familyID, seasonID int64) (*models.FamilyStatement, error) {
	if err := requireFamilyAccess(actor, familyID); err != nil {
		return nil, err
	}
	rows, err := s.balances.ListByFamilySeason(ctx, familyID, seasonID)
	if err != nil {
		return nil, internalError(err, "failed to load balances")
	}
	receipts, err := s.receipts.ListByFamilySeason(ctx, familyID, seasonID)
	if err != nil {
		return nil, internalError(err, "failed to load receipts")
	}
	total := decimal.Zero
	for _, row := range rows {
		total = total.Add(row.TotalAmount)
	}
	return &models.FamilyStatement{
		FamilyID: familyID,
		SeasonID: seasonID,
		Rows:     rows,
		Receipts: receipts,
		Total:    total,
	}, nil
}
