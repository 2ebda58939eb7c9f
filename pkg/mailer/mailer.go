package mailer

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"
)

const (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

// Message is one outbound HTML mail.
type Message struct {
	To      string `json:"to"`
	ToName  string `json:"to_name"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// Sender delivers mail.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SendGridSender delivers mail through the SendGrid v3 API.
type SendGridSender struct {
	key        string
	from       *sgmail.Email
	subjPrefix string
	host       string
}

// NewSendGridSender constructs a SendGrid sender.
func NewSendGridSender(key, fromName, fromAddress, subjectPrefix string) *SendGridSender {
	return &SendGridSender{
		key:        key,
		from:       sgmail.NewEmail(fromName, fromAddress),
		subjPrefix: subjectPrefix,
		host:       sendgridHost,
	}
}

func (s *SendGridSender) build(msg Message) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = s.subjPrefix + msg.Subject
	p.AddTos(sgmail.NewEmail(msg.ToName, msg.To))

	m := sgmail.NewV3Mail()
	m.SetFrom(s.from)
	m.AddPersonalizations(p)
	m.AddContent(sgmail.NewContent("text/html", msg.HTML))
	return m
}

// Send posts the message to SendGrid.
func (s *SendGridSender) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return fmt.Errorf("mail recipient is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	req := sendgrid.GetRequest(s.key, sendgridEndpoint, s.host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(s.build(msg))

	res, err := sendgrid.API(req)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid send: status %d: %s", res.StatusCode, res.Body)
	}
	return nil
}

// LogSender writes mail to the logger instead of delivering it.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender constructs a log-only sender.
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

// Send logs the message.
func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.logger.Info("mail suppressed",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Int("html_bytes", len(msg.HTML)),
	)
	return nil
}
