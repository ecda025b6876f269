package dispatcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"cloudops-agent/internal/agent/catalog"
	apperrors "cloudops-agent/internal/common/errors"
	"cloudops-agent/internal/common/logger"
	"cloudops-agent/internal/models"
	"cloudops-agent/internal/provider/providertest"
)

func newTestDispatcher(t *testing.T, p *providertest.MockProvider, timeout time.Duration) (*Dispatcher, *tracetest.SpanRecorder) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	return New(p, catalog.New(), timeout, tp.Tracer("test"), logger.NewTestLogger(t)), recorder
}

func TestDispatcher_Execute_Success(t *testing.T) {
	network := &models.NetworkResult{
		Network: models.Network{ID: "net-1", Name: "backend", AdminStateUp: true},
		Subnet:  models.Subnet{ID: "sub-1", Name: "backend-subnet", NetworkID: "net-1", IPVersion: 4, CIDR: "192.168.1.0/24"},
	}

	tests := []struct {
		name        string
		operation   string
		params      models.EntitySet
		setup       func(p *providertest.MockProvider)
		wantMessage string
		wantDetails map[string]interface{}
	}{
		{
			name:      "create vm",
			operation: "create_vm",
			params:    models.EntitySet{"name": "dev-box", "flavor": "S.4"},
			setup: func(p *providertest.MockProvider) {
				p.On("CreateVM", mock.Anything, "dev-box", "S.4").Return("vm-123", nil).Once()
			},
			wantMessage: "VM dev-box is being created",
			wantDetails: map[string]interface{}{"status": "creating", "id": "vm-123", "name": "dev-box"},
		},
		{
			name:      "resize vm",
			operation: "resize_vm",
			params:    models.EntitySet{"name": "web01", "flavor": "M.8"},
			setup: func(p *providertest.MockProvider) {
				p.On("ResizeVM", mock.Anything, "web01", "M.8").Return(nil).Once()
			},
			wantMessage: "VM web01 is being resized to M.8",
			wantDetails: map[string]interface{}{"status": "resizing", "name": "web01", "flavor": "M.8"},
		},
		{
			name:      "delete vm",
			operation: "delete_vm",
			params:    models.EntitySet{"name": "web01"},
			setup: func(p *providertest.MockProvider) {
				p.On("DeleteVM", mock.Anything, "web01").Return(nil).Once()
			},
			wantMessage: "VM web01 has been deleted",
			wantDetails: map[string]interface{}{"status": "deleted", "name": "web01"},
		},
		{
			name:      "create network",
			operation: "create_network",
			params:    models.EntitySet{"name": "backend"},
			setup: func(p *providertest.MockProvider) {
				p.On("CreateNetwork", mock.Anything, "backend").Return(network, nil).Once()
			},
			wantMessage: "Network backend has been created",
			wantDetails: map[string]interface{}{"network": network.Network, "subnet": network.Subnet},
		},
		{
			name:      "create volume with string size",
			operation: "create_volume",
			params:    models.EntitySet{"name": "data", "size": "20"},
			setup: func(p *providertest.MockProvider) {
				p.On("CreateVolume", mock.Anything, "data", 20).Return("vol-1", nil).Once()
			},
			wantMessage: "Volume data is being created",
			wantDetails: map[string]interface{}{"status": "creating", "id": "vol-1", "name": "data", "size": 20},
		},
		{
			name:      "delete volume",
			operation: "delete_volume",
			params:    models.EntitySet{"name": "data"},
			setup: func(p *providertest.MockProvider) {
				p.On("DeleteVolume", mock.Anything, "data").Return(nil).Once()
			},
			wantMessage: "Volume data has been deleted",
			wantDetails: map[string]interface{}{"status": "deleted", "name": "data"},
		},
		{
			name:      "usage",
			operation: "get_usage",
			setup: func(p *providertest.MockProvider) {
				p.On("GetUsage", mock.Anything).
					Return(&models.Usage{VCPUs: 2, RAMMB: 4096, VolumesGB: 20, VMCount: 1, VolumeCount: 1}, nil).Once()
			},
			wantMessage: "Current project usage:\n- vCPUs: 2\n- RAM: 4096 MB\n- Storage: 20 GB\n- VMs: 1\n- Volumes: 1",
			wantDetails: map[string]interface{}{
				"vcpus_used": 2, "ram_mb_used": 4096, "volumes_gb": 20, "vm_count": 1, "volume_count": 1,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := new(providertest.MockProvider)
			tt.setup(p)
			d, recorder := newTestDispatcher(t, p, time.Second)

			result := d.Execute(context.Background(), tt.operation, tt.params)

			assert.Equal(t, models.StatusSuccess, result.Status)
			assert.Equal(t, tt.wantMessage, result.Message)
			assert.Equal(t, tt.wantDetails, result.Details)
			p.AssertExpectations(t)

			spans := recorder.Ended()
			require.Len(t, spans, 1)
			assert.Equal(t, "provider."+tt.operation, spans[0].Name())
			assert.Equal(t, codes.Ok, spans[0].Status().Code)
		})
	}
}

func TestDispatcher_Execute_ProviderErrors(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantMessage string
	}{
		{
			name:        "not found passes message through",
			err:         apperrors.NewProviderNotFoundError("VM web01 not found", nil),
			wantMessage: "VM web01 not found",
		},
		{
			name:        "quota exceeded",
			err:         apperrors.NewProviderQuotaExceededError("Quota exceeded for cores", nil),
			wantMessage: "Quota exceeded for cores",
		},
		{
			name:        "unclassified error keeps its text",
			err:         errors.New("connection reset by peer"),
			wantMessage: "connection reset by peer",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := new(providertest.MockProvider)
			p.On("DeleteVM", mock.Anything, "web01").Return(tt.err).Once()
			d, recorder := newTestDispatcher(t, p, time.Second)

			result := d.Execute(context.Background(), "delete_vm", models.EntitySet{"name": "web01"})

			assert.Equal(t, models.StatusError, result.Status)
			assert.Equal(t, tt.wantMessage, result.Message)
			assert.Nil(t, result.Details)
			p.AssertNumberOfCalls(t, "DeleteVM", 1)

			spans := recorder.Ended()
			require.Len(t, spans, 1)
			assert.Equal(t, codes.Error, spans[0].Status().Code)
		})
	}
}

func TestDispatcher_Execute_Timeout(t *testing.T) {
	p := new(providertest.MockProvider)
	p.On("CreateVM", mock.Anything, "slow", "S.4").
		Run(func(mock.Arguments) { time.Sleep(300 * time.Millisecond) }).
		Return("vm-late", nil).Once()

	d, _ := newTestDispatcher(t, p, 20*time.Millisecond)

	start := time.Now()
	result := d.Execute(context.Background(), "create_vm", models.EntitySet{"name": "slow", "flavor": "S.4"})

	assert.Less(t, time.Since(start), 250*time.Millisecond)
	assert.Equal(t, models.StatusError, result.Status)
	assert.Contains(t, result.Message, "timed out")

	_, err := d.Run(context.Background(), "delete_vm", nil)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidationFailed))
}

func TestDispatcher_Run_TimeoutIsClassified(t *testing.T) {
	p := new(providertest.MockProvider)
	p.On("DeleteVolume", mock.Anything, "data").
		Return(context.DeadlineExceeded).Once()

	d, _ := newTestDispatcher(t, p, time.Second)

	_, err := d.Run(context.Background(), "delete_volume", models.EntitySet{"name": "data"})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeProviderTimeout))
}

func TestDispatcher_Execute_Rejections(t *testing.T) {
	tests := []struct {
		name        string
		operation   string
		params      models.EntitySet
		wantMessage string
	}{
		{"unknown operation", "reboot_vm", models.EntitySet{"name": "a"}, "Unknown operation: reboot_vm"},
		{"missing name", "delete_vm", models.EntitySet{}, "Missing required parameter: name"},
		{"missing flavor", "create_vm", models.EntitySet{"name": "a"}, "Missing required parameter: flavor"},
		{"bad size", "create_volume", models.EntitySet{"name": "a", "size": "lots"}, "Invalid volume size"},
		{"zero size", "create_volume", models.EntitySet{"name": "a", "size": 0}, "Invalid volume size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := new(providertest.MockProvider)
			d, recorder := newTestDispatcher(t, p, time.Second)

			result := d.Execute(context.Background(), tt.operation, tt.params)

			assert.Equal(t, models.StatusError, result.Status)
			assert.Equal(t, tt.wantMessage, result.Message)
			assert.Empty(t, p.Calls)
			assert.Empty(t, recorder.Ended())
		})
	}
}

func TestDispatcher_Usage(t *testing.T) {
	p := new(providertest.MockProvider)
	p.On("GetUsage", mock.Anything).Return(nil, apperrors.NewProviderTransportError("keystone unreachable", nil)).Once()

	d, _ := newTestDispatcher(t, p, time.Second)

	_, err := d.Usage(context.Background())
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeProviderTransportFailed))
	assert.Equal(t, "keystone unreachable", apperrors.MessageOf(err))
}
