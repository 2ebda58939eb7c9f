package mailer

import (
	"context"
	"encoding/json"
	"testing"

	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSendGridSenderBuild(t *testing.T) {
	s := NewSendGridSender("key", "School Office", "office@example.com", "[Registry] ")
	m := s.build(Message{To: "parent@example.com", ToName: "Parent", Subject: "Change approved", HTML: "<p>ok</p>"})

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(sgmail.GetRequestBody(m), &payload))

	personalizations := payload["personalizations"].([]interface{})
	require.Len(t, personalizations, 1)
	p := personalizations[0].(map[string]interface{})
	assert.Equal(t, "[Registry] Change approved", p["subject"])
	from := payload["from"].(map[string]interface{})
	assert.Equal(t, "office@example.com", from["email"])
}

func TestSendGridSenderRequiresRecipient(t *testing.T) {
	s := NewSendGridSender("key", "School Office", "office@example.com", "")
	assert.Error(t, s.Send(context.Background(), Message{Subject: "x"}))
}

func TestLogSender(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s := NewLogSender(zap.New(core))

	require.NoError(t, s.Send(context.Background(), Message{To: "parent@example.com", Subject: "hello", HTML: "<b>x</b>"}))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "mail suppressed", logs.All()[0].Message)
}
