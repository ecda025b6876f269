package gate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"cloudops-agent/internal/agent/audit"
	"cloudops-agent/internal/agent/catalog"
	"cloudops-agent/internal/agent/dispatcher"
	apperrors "cloudops-agent/internal/common/errors"
	"cloudops-agent/internal/common/logger"
	"cloudops-agent/internal/models"
	"cloudops-agent/internal/provider/providertest"
)

type recordingNotifier struct {
	operations []string
	err        error
}

func (n *recordingNotifier) NotifyExecution(_ context.Context, operation string, _ models.EntitySet, _ models.ExecutionResult) error {
	n.operations = append(n.operations, operation)
	return n.err
}

type brokenStore struct{}

func (brokenStore) Append(context.Context, *models.InteractionRecord) error {
	return errors.New("database is down")
}

func (brokenStore) List(context.Context, int) ([]models.InteractionRecord, error) {
	return nil, nil
}

type fixture struct {
	gate     *Gate
	provider *providertest.MockProvider
	store    *audit.MemoryStore
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	log := logger.NewTestLogger(t)
	p := new(providertest.MockProvider)
	c := catalog.New()
	store := audit.NewMemoryStore()
	d := dispatcher.New(p, c, time.Second, nil, log)
	return &fixture{
		gate:     New(c, d, audit.NewLog(store, log), log, opts...),
		provider: p,
		store:    store,
	}
}

func (f *fixture) lastRecord(t *testing.T) models.InteractionRecord {
	t.Helper()
	records, err := f.store.List(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	return records[0]
}

func TestConfirm_ExecutesExactlyOnce(t *testing.T) {
	f := newFixture(t)
	f.provider.On("CreateVM", mock.Anything, "dev-box", "S.4").Return("vm-1", nil).Once()

	result, err := f.gate.Confirm(context.Background(), models.ConfirmationRequest{
		Operation:  "create_vm",
		Confirmed:  true,
		Parameters: models.EntitySet{"name": "dev-box", "flavor": "S.4"},
	})

	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, result.Status)
	assert.Equal(t, "VM dev-box is being created", result.Message)
	assert.Equal(t, "vm-1", result.Details["id"])
	f.provider.AssertNumberOfCalls(t, "CreateVM", 1)

	rec := f.lastRecord(t)
	assert.Equal(t, ConfirmedMessage, rec.UserMessage)
	assert.Equal(t, "create_vm", rec.DetectedIntent)
	assert.Equal(t, "dev-box", rec.Entities["name"])
	require.NotNil(t, rec.OperationExecuted)
	assert.Equal(t, "create_vm", *rec.OperationExecuted)
	assert.Equal(t, "success", rec.OperationResult["status"])
}

func TestConfirm_CancelledNeverCallsProvider(t *testing.T) {
	tests := []struct {
		name      string
		operation string
		params    models.EntitySet
	}{
		{"valid operation", "create_vm", models.EntitySet{"name": "dev-box", "flavor": "S.4"}},
		{"unknown operation", "format_disk", models.EntitySet{"name": "x"}},
		{"no parameters", "delete_vm", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			result, err := f.gate.Confirm(context.Background(), models.ConfirmationRequest{
				Operation:  tt.operation,
				Confirmed:  false,
				Parameters: tt.params,
			})

			require.NoError(t, err)
			assert.Equal(t, models.StatusCancelled, result.Status)
			assert.Equal(t, catalog.CancelledMessage, result.Message)
			assert.Empty(t, f.provider.Calls)

			rec := f.lastRecord(t)
			assert.Equal(t, CancelledMessage, rec.UserMessage)
			assert.Equal(t, catalog.CancelledAuditResponse, rec.SystemResponse)
			assert.Nil(t, rec.OperationExecuted)
		})
	}
}

func TestConfirm_UnknownOperation(t *testing.T) {
	f := newFixture(t)

	result, err := f.gate.Confirm(context.Background(), models.ConfirmationRequest{
		Operation: "reboot_everything",
		Confirmed: true,
	})

	require.NoError(t, err)
	assert.Equal(t, models.StatusError, result.Status)
	assert.Equal(t, "Unknown operation: reboot_everything", result.Message)
	assert.Empty(t, f.provider.Calls)
	assert.Equal(t, 1, f.store.Len())
}

func TestConfirm_InvalidParameters(t *testing.T) {
	f := newFixture(t)

	result, err := f.gate.Confirm(context.Background(), models.ConfirmationRequest{
		Operation:  "create_volume",
		Confirmed:  true,
		Parameters: models.EntitySet{"name": "data", "size": "lots"},
	})

	require.NoError(t, err)
	assert.Equal(t, models.StatusError, result.Status)
	assert.Contains(t, result.Message, "Invalid parameters for create_volume")
	assert.Empty(t, f.provider.Calls)
}

func TestConfirm_ProviderErrorIsAResult(t *testing.T) {
	notifier := &recordingNotifier{}
	f := newFixture(t, WithNotifier(notifier))
	f.provider.On("DeleteVM", mock.Anything, "ghost").
		Return(apperrors.NewProviderNotFoundError("VM ghost not found", nil)).Once()

	result, err := f.gate.Confirm(context.Background(), models.ConfirmationRequest{
		Operation:  "delete_vm",
		Confirmed:  true,
		Parameters: models.EntitySet{"name": "ghost"},
	})

	require.NoError(t, err)
	assert.Equal(t, models.StatusError, result.Status)
	assert.Equal(t, "VM ghost not found", result.Message)
	assert.Empty(t, notifier.operations)

	rec := f.lastRecord(t)
	assert.Equal(t, "error", rec.OperationResult["status"])
}

func TestConfirm_PersistenceFailureIsNotSuccess(t *testing.T) {
	log := logger.NewTestLogger(t)
	p := new(providertest.MockProvider)
	p.On("DeleteVolume", mock.Anything, "data").Return(nil).Once()
	c := catalog.New()
	g := New(c, dispatcher.New(p, c, time.Second, nil, log), audit.NewLog(brokenStore{}, log), log)

	_, err := g.Confirm(context.Background(), models.ConfirmationRequest{
		Operation:  "delete_volume",
		Confirmed:  true,
		Parameters: models.EntitySet{"name": "data"},
	})

	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodePersistenceFailed))
}

func TestConfirm_NotifiesMutatingSuccess(t *testing.T) {
	notifier := &recordingNotifier{err: errors.New("sns throttled")}
	f := newFixture(t, WithNotifier(notifier))
	f.provider.On("CreateVolume", mock.Anything, "data", 20).Return("vol-1", nil).Once()
	f.provider.On("GetUsage", mock.Anything).Return(&models.Usage{}, nil).Once()

	result, err := f.gate.Confirm(context.Background(), models.ConfirmationRequest{
		Operation:  "create_volume",
		Confirmed:  true,
		Parameters: models.EntitySet{"name": "data", "size": float64(20)},
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, result.Status)

	result, err = f.gate.Confirm(context.Background(), models.ConfirmationRequest{
		Operation: "get_usage",
		Confirmed: true,
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, result.Status)

	assert.Equal(t, []string{"create_volume"}, notifier.operations)
}

func TestConfirm_Tokens(t *testing.T) {
	signer := NewSigner("secret", time.Minute)
	params := models.EntitySet{"name": "web01"}
	valid := signer.Sign("delete_vm", params)

	tests := []struct {
		name       string
		require    bool
		token      string
		params     models.EntitySet
		wantStatus models.ExecutionStatus
		wantCalls  int
	}{
		{"valid token", true, valid, params, models.StatusSuccess, 1},
		{"missing token required", true, "", params, models.StatusError, 0},
		{"missing token optional", false, "", params, models.StatusSuccess, 1},
		{"substituted parameters", false, valid, models.EntitySet{"name": "db01"}, models.StatusError, 0},
		{"garbage token", true, "not-a-token", params, models.StatusError, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, WithSigner(signer, tt.require))
			f.provider.On("DeleteVM", mock.Anything, mock.Anything).Return(nil)

			result, err := f.gate.Confirm(context.Background(), models.ConfirmationRequest{
				Operation:  "delete_vm",
				Confirmed:  true,
				Parameters: tt.params,
				Token:      tt.token,
			})

			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, result.Status)
			f.provider.AssertNumberOfCalls(t, "DeleteVM", tt.wantCalls)
			if tt.wantStatus == models.StatusError {
				assert.Contains(t, result.Message, "Confirmation token rejected")
			}
		})
	}
}

func TestSigner_Verify(t *testing.T) {
	signer := NewSigner("secret", time.Minute)
	params := models.EntitySet{"name": "data", "size": 20}
	token := signer.Sign("create_volume", params)

	assert.NoError(t, signer.Verify(token, "create_volume", params))
	assert.NoError(t, signer.Verify(token, "create_volume", models.EntitySet{"name": "data", "size": "20"}))
	assert.NoError(t, signer.Verify(token, "create_volume", models.EntitySet{"size": float64(20), "name": "data"}))

	assert.ErrorIs(t, signer.Verify(token, "delete_volume", params), ErrTokenMismatch)
	assert.ErrorIs(t, signer.Verify(token, "create_volume", models.EntitySet{"name": "data", "size": 200}), ErrTokenMismatch)
	assert.ErrorIs(t, NewSigner("other", time.Minute).Verify(token, "create_volume", params), ErrTokenMismatch)
	assert.ErrorIs(t, signer.Verify("", "create_volume", params), ErrTokenMissing)
	assert.ErrorIs(t, signer.Verify("a.b", "create_volume", params), ErrTokenMalformed)
	assert.ErrorIs(t, signer.Verify("a.notanumber.ff", "create_volume", params), ErrTokenMalformed)
}

func TestSigner_Expiry(t *testing.T) {
	signer := NewSigner("secret", time.Minute)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	signer.now = func() time.Time { return now }

	token := signer.Sign("delete_vm", models.EntitySet{"name": "web01"})

	now = now.Add(30 * time.Second)
	assert.NoError(t, signer.Verify(token, "delete_vm", models.EntitySet{"name": "web01"}))

	now = now.Add(2 * time.Minute)
	assert.ErrorIs(t, signer.Verify(token, "delete_vm", models.EntitySet{"name": "web01"}), ErrTokenExpired)
}
