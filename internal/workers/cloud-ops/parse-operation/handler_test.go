package parseoperation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cloudops-agent/internal/agent/audit"
	"cloudops-agent/internal/agent/catalog"
	"cloudops-agent/internal/agent/chat"
	"cloudops-agent/internal/agent/dispatcher"
	"cloudops-agent/internal/agent/extractor"
	apperrors "cloudops-agent/internal/common/errors"
	"cloudops-agent/internal/common/logger"
	"cloudops-agent/internal/models"
	"cloudops-agent/internal/provider"
)

type TestLogger struct {
	t      *testing.T
	fields map[string]interface{}
}

func NewTestLogger(t *testing.T) *TestLogger {
	return &TestLogger{t: t, fields: map[string]interface{}{}}
}

func (l *TestLogger) Info(msg string, fields map[string]interface{}) {
	l.t.Logf("INFO: %s %v %v", msg, l.fields, fields)
}

func (l *TestLogger) Warn(msg string, fields map[string]interface{}) {
	l.t.Logf("WARN: %s %v %v", msg, l.fields, fields)
}

func (l *TestLogger) Error(msg string, fields map[string]interface{}) {
	l.t.Logf("ERROR: %s %v %v", msg, l.fields, fields)
}

func (l *TestLogger) With(fields map[string]interface{}) Logger {
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &TestLogger{t: l.t, fields: merged}
}

type stubChat struct {
	resp models.ChatResponse
	err  error
}

func (s stubChat) Handle(context.Context, string) (models.ChatResponse, error) {
	return s.resp, s.err
}

func newChat(t *testing.T, store audit.Store) *chat.Service {
	log := logger.NewTestLogger(t)
	c := catalog.New()
	d := dispatcher.New(provider.NewMemoryProvider(nil, provider.Quota{}, ""), c, time.Second, nil, log)
	return chat.New(extractor.New(nil), c, d, audit.NewLog(store, log), nil, log)
}

func TestHandler_Execute_Proposal(t *testing.T) {
	store := audit.NewMemoryStore()
	h := NewHandler(LoadConfig(), newChat(t, store), NewTestLogger(t))

	out, err := h.Execute(context.Background(), &Input{Message: "Delete volume scratch"})
	require.NoError(t, err)

	assert.True(t, out.RequiresConfirmation)
	assert.Equal(t, "delete_volume", out.Operation)
	assert.Equal(t, map[string]interface{}{"name": "scratch"}, out.Parameters)
	assert.Contains(t, out.Reply, "scratch")
	assert.Equal(t, 1, store.Len())
}

func TestHandler_Execute_UsageAnswered(t *testing.T) {
	h := NewHandler(LoadConfig(), newChat(t, audit.NewMemoryStore()), NewTestLogger(t))

	out, err := h.Execute(context.Background(), &Input{Message: "show my usage"})
	require.NoError(t, err)

	assert.False(t, out.RequiresConfirmation)
	assert.Empty(t, out.Operation)
	assert.Contains(t, out.Reply, "vCPUs: 0")
}

func TestHandler_Execute_Errors(t *testing.T) {
	tests := []struct {
		name    string
		chat    ChatService
		input   *Input
		wantErr error
	}{
		{
			name:    "blank message",
			chat:    stubChat{},
			input:   &Input{Message: "   "},
			wantErr: ErrInvalidInput,
		},
		{
			name:    "audit write failure",
			chat:    stubChat{err: apperrors.NewPersistenceError(errors.New("connection reset"))},
			input:   &Input{Message: "create a vm"},
			wantErr: ErrAuditFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(LoadConfig(), tt.chat, NewTestLogger(t))
			_, err := h.Execute(context.Background(), tt.input)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestHandler_Execute_PassesToken(t *testing.T) {
	h := NewHandler(LoadConfig(), stubChat{resp: models.ChatResponse{
		Message:              "I'll delete VM 'web'.",
		RequiresConfirmation: true,
		Operation:            "delete_vm",
		Parameters:           models.EntitySet{"name": "web"},
		Token:                "n.1.abc",
	}}, NewTestLogger(t))

	out, err := h.Execute(context.Background(), &Input{Message: "delete vm web"})
	require.NoError(t, err)
	assert.Equal(t, "n.1.abc", out.Token)
}
