package parseoperation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	apperrors "cloudops-agent/internal/common/errors"
	"cloudops-agent/internal/common/metrics"
	"cloudops-agent/internal/models"
)

const (
	TaskType = "parse-operation"
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

// ChatService runs one chat turn and records it.
type ChatService interface {
	Handle(ctx context.Context, message string) (models.ChatResponse, error)
}

type Handler struct {
	config *Config
	chat   ChatService
	logger Logger
}

func NewHandler(config *Config, chat ChatService, log Logger) *Handler {
	return &Handler{
		config: config,
		chat:   chat,
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
		retries := int32(0)
		if errors.Is(err, ErrAuditFailed) {
			retries = job.Retries - 1
		}
		h.failJob(client, job, err, retries)
		return
	}

	h.completeJob(client, job, output)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	message := strings.TrimSpace(input.Message)
	if message == "" {
		return nil, fmt.Errorf("%w: message is required", ErrInvalidInput)
	}

	resp, err := h.chat.Handle(ctx, message)
	if err != nil {
		if apperrors.IsCode(err, apperrors.ErrCodePersistenceFailed) {
			return nil, fmt.Errorf("%w: %v", ErrAuditFailed, err)
		}
		return nil, err
	}

	output := &Output{
		Reply:                resp.Message,
		RequiresConfirmation: resp.RequiresConfirmation,
		Operation:            resp.Operation,
		Parameters:           resp.Parameters,
		Token:                resp.Token,
	}

	h.logger.Info("operation parsed", map[string]interface{}{
		"operation":            output.Operation,
		"requiresConfirmation": output.RequiresConfirmation,
	})
	return output, nil
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
	if retries < 0 {
		retries = 0
	}
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
