package service

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/school-registry/internal/models"
	"github.com/noah-isme/school-registry/pkg/jobs"
	"github.com/noah-isme/school-registry/pkg/mailer"
)

const mailJobType = "family_mail"

type familyDirectory interface {
	FindByID(ctx context.Context, id int64) (*models.Family, error)
}

// Notifier receives post-commit workflow events. Implementations must not block.
type Notifier interface {
	ChangeRequestDecided(ctx context.Context, req models.RegChangeRequest)
	PaymentApplied(ctx context.Context, receipt models.PaymentReceipt, balance models.FamilyBalance)
}

type mailPayload struct {
	FamilyID int64
	Subject  string
	HTML     string
}

var mailTemplates = template.Must(template.New("mail").Parse(`
{{define "change"}}<p>Dear {{.Family.ParentName}},</p>
<p>Your change request #{{.Request.ID}} for registration #{{.Request.RegistrationID}} was <strong>{{.Request.Status}}</strong>.</p>
{{if .Request.Note}}<p>Note: {{.Request.Note}}</p>{{end}}{{end}}
{{define "payment"}}<p>Dear {{.Family.ParentName}},</p>
<p>We received your payment of {{.Receipt.Amount.StringFixed 2}} (reference {{.Receipt.Reference}}).</p>
<p>Remaining balance on statement #{{.Balance.ID}}: {{.Balance.TotalAmount.StringFixed 2}}.</p>{{end}}
`))

// NotificationService renders family mails and dispatches them through a
// background queue so that workflow transactions never wait on the mail provider.
type NotificationService struct {
	queue    *jobs.Queue
	sender   mailer.Sender
	families familyDirectory
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewNotificationService builds the service and its queue. Call Start before use.
func NewNotificationService(sender mailer.Sender, families familyDirectory, metrics *MetricsService, logger *zap.Logger, cfg jobs.QueueConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &NotificationService{
		sender:   sender,
		families: families,
		metrics:  metrics,
		logger:   logger,
	}
	if cfg.Logger == nil {
		cfg.Logger = logger
	}
	svc.queue = jobs.NewQueue("mail", svc.handle, cfg)
	return svc
}

// Start launches the mail workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains buffered mails and stops the workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// ChangeRequestDecided mails the family about an approved or rejected request.
func (s *NotificationService) ChangeRequestDecided(ctx context.Context, req models.RegChangeRequest) {
	family, ok := s.lookupFamily(ctx, req.FamilyID)
	if !ok {
		return
	}
	html, err := render("change", map[string]interface{}{"Family": family, "Request": req})
	if err != nil {
		s.logger.Warn("failed to render change request mail", zap.Int64("request_id", req.ID), zap.Error(err))
		return
	}
	subject := fmt.Sprintf("Change request %s", req.Status)
	s.enqueue(mailPayload{FamilyID: family.ID, Subject: subject, HTML: html})
}

// PaymentApplied mails the family a receipt.
func (s *NotificationService) PaymentApplied(ctx context.Context, receipt models.PaymentReceipt, balance models.FamilyBalance) {
	family, ok := s.lookupFamily(ctx, receipt.FamilyID)
	if !ok {
		return
	}
	html, err := render("payment", map[string]interface{}{"Family": family, "Receipt": receipt, "Balance": balance})
	if err != nil {
		s.logger.Warn("failed to render payment mail", zap.Int64("receipt_id", receipt.ID), zap.Error(err))
		return
	}
	s.enqueue(mailPayload{FamilyID: family.ID, Subject: "Payment received", HTML: html})
}

func (s *NotificationService) lookupFamily(ctx context.Context, familyID int64) (*models.Family, bool) {
	if s == nil || s.families == nil {
		return nil, false
	}
	family, err := s.families.FindByID(ctx, familyID)
	if err != nil {
		s.logger.Warn("failed to load family for mail", zap.Int64("family_id", familyID), zap.Error(err))
		return nil, false
	}
	if family.Email == "" {
		s.logger.Debug("family has no email", zap.Int64("family_id", familyID))
		return nil, false
	}
	return family, true
}

func (s *NotificationService) enqueue(payload mailPayload) {
	job := jobs.Job{ID: uuid.NewString(), Type: mailJobType, Payload: payload}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Warn("failed to enqueue mail", zap.Int64("family_id", payload.FamilyID), zap.Error(err))
		s.metrics.RecordMailJob(err)
	}
}

func (s *NotificationService) handle(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(mailPayload)
	if !ok {
		return fmt.Errorf("unexpected mail payload %T", job.Payload)
	}
	family, err := s.families.FindByID(ctx, payload.FamilyID)
	if err != nil {
		return err
	}
	err = s.sender.Send(ctx, mailer.Message{
		To:      family.Email,
		ToName:  family.ParentName,
		Subject: payload.Subject,
		HTML:    payload.HTML,
	})
	s.metrics.RecordMailJob(err)
	return err
}

func render(name string, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := mailTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
