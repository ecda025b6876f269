package confirmoperation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"cloudops-agent/internal/common/metrics"
	"cloudops-agent/internal/models"
)

const (
	TaskType = "confirm-operation"
)

var (
	ErrInvalidInput = errors.New("INVALID_INPUT")
	ErrAuditFailed  = errors.New("AUDIT_FAILED")
)

type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

// Gate resolves a confirmation request exactly once.
type Gate interface {
	Confirm(ctx context.Context, req models.ConfirmationRequest) (models.ExecutionResult, error)
}

type Handler struct {
	config *Config
	gate   Gate
	logger Logger
}

func NewHandler(config *Config, gate Gate, log Logger) *Handler {
	return &Handler{
		config: config,
		gate:   gate,
		logger: log.With(map[string]interface{}{
			"taskType": TaskType,
		}),
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.failJob(client, job, fmt.Errorf("%w: parse input: %v", ErrInvalidInput, err), 0)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.execute(ctx, &input)
	if err != nil {
		// No retries: the provider call may already have happened.
		h.failJob(client, job, err, 0)
		return
	}

	h.completeJob(client, job, output)
}

// execute never turns a provider failure into a job failure: the outcome
// is returned in executionStatus for the process to route on.
func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if input.Operation == "" {
		return nil, fmt.Errorf("%w: operation is required", ErrInvalidInput)
	}

	result, err := h.gate.Confirm(ctx, models.ConfirmationRequest{
		Operation:  input.Operation,
		Confirmed:  input.Approved,
		Parameters: models.EntitySet(input.Parameters),
		Token:      input.Token,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuditFailed, err)
	}

	h.logger.Info("operation resolved", map[string]interface{}{
		"operation": input.Operation,
		"approved":  input.Approved,
		"status":    string(result.Status),
	})

	return &Output{
		ExecutionStatus:  string(result.Status),
		ExecutionMessage: result.Message,
		ExecutionDetails: result.Details,
	}, nil
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("Failed to create complete job command", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err.Error(),
		})
		return
	}

	if _, err := cmd.Send(context.Background()); err != nil {
		h.logger.Error("Failed to send complete job command", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err.Error(),
		})
		return
	}
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
}

func (h *Handler) failJob(client worker.JobClient, job entities.Job, err error, retries int32) {
	errorCode := "UNKNOWN_ERROR"
	if errors.Is(err, ErrInvalidInput) {
		errorCode = "INVALID_INPUT"
	} else if errors.Is(err, ErrAuditFailed) {
		errorCode = "AUDIT_FAILED"
	}

	h.logger.Error("job failed", map[string]interface{}{
		"jobKey":    job.Key,
		"error":     err.Error(),
		"errorCode": errorCode,
	})
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, errorCode).Inc()

	_, _ = client.NewFailJobCommand().
		JobKey(job.Key).
		Retries(retries).
		ErrorMessage(errorCode + ": " + err.Error()).
		Send(context.Background())
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
