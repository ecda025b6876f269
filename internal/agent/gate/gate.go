// Package gate executes a previously proposed operation once the caller has
// confirmed it. Parameters are taken as supplied by the caller; no proposal
// state is kept on the server.
package gate

import (
	"context"
	"fmt"
	"time"

	"cloudops-agent/internal/agent/audit"
	"cloudops-agent/internal/agent/catalog"
	apperrors "cloudops-agent/internal/common/errors"
	"cloudops-agent/internal/common/logger"
	"cloudops-agent/internal/common/metrics"
	"cloudops-agent/internal/models"
)

const (
	ConfirmedMessage = "User confirmed operation"
	CancelledMessage = "User cancelled operation"

	notifyTimeout = 5 * time.Second
)

// Executor runs a validated operation. *dispatcher.Dispatcher satisfies it.
type Executor interface {
	Execute(ctx context.Context, operation string, params models.EntitySet) models.ExecutionResult
}

// Notifier is told about successful state-changing operations.
type Notifier interface {
	NotifyExecution(ctx context.Context, operation string, params models.EntitySet, result models.ExecutionResult) error
}

type Gate struct {
	catalog      *catalog.Catalog
	executor     Executor
	audit        *audit.Log
	signer       *Signer
	requireToken bool
	notifier     Notifier
	logger       logger.Logger
}

type Option func(*Gate)

// WithSigner enables proposal tokens. With require set, a confirmed request
// without a valid token is rejected.
func WithSigner(s *Signer, require bool) Option {
	return func(g *Gate) {
		g.signer = s
		g.requireToken = require
	}
}

func WithNotifier(n Notifier) Option {
	return func(g *Gate) {
		g.notifier = n
	}
}

func New(c *catalog.Catalog, executor Executor, auditLog *audit.Log, log logger.Logger, opts ...Option) *Gate {
	g := &Gate{
		catalog:  c,
		executor: executor,
		audit:    auditLog,
		logger:   logger.Component(log, "gate"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Confirm resolves req into exactly one result and one audit record. The
// returned error is non-nil only when the audit write failed.
func (g *Gate) Confirm(ctx context.Context, req models.ConfirmationRequest) (models.ExecutionResult, error) {
	userMessage := ConfirmedMessage
	if !req.Confirmed {
		userMessage = CancelledMessage
	}

	var result models.ExecutionResult
	_, err := g.audit.Track(ctx, userMessage, func(rec *models.InteractionRecord) error {
		rec.DetectedIntent = req.Operation
		if req.Parameters != nil {
			rec.Entities = req.Parameters.Clone()
		}

		if !req.Confirmed {
			result = models.ExecutionResult{Status: models.StatusCancelled, Message: catalog.CancelledMessage}
			rec.SystemResponse = catalog.CancelledAuditResponse
			return nil
		}

		result = g.confirmed(ctx, req)
		rec.SystemResponse = result.Message
		rec.MarkExecuted(req.Operation, result.AsMap())
		return nil
	})

	metrics.ConfirmationsTotal.WithLabelValues(g.operationLabel(req.Operation), string(result.Status)).Inc()
	if err != nil {
		return models.ExecutionResult{}, err
	}

	g.logger.Info("confirmation resolved", map[string]interface{}{
		"operation": req.Operation,
		"confirmed": req.Confirmed,
		"status":    string(result.Status),
	})
	return result, nil
}

func (g *Gate) confirmed(ctx context.Context, req models.ConfirmationRequest) models.ExecutionResult {
	entry, ok := g.catalog.Lookup(req.Operation)
	if !ok {
		return errorResult(apperrors.NewUnknownOperationError(req.Operation).Message)
	}

	if err := g.checkToken(req); err != nil {
		g.logger.Warn("confirmation token rejected", map[string]interface{}{
			"operation": req.Operation,
			"error":     err.Error(),
		})
		return errorResult(fmt.Sprintf("Confirmation token rejected: %s", err.Error()))
	}

	if err := entry.ValidateParameters(req.Parameters); err != nil {
		return errorResult(fmt.Sprintf("Invalid parameters for %s: %s", req.Operation, err.Error()))
	}

	result := g.executor.Execute(ctx, req.Operation, req.Parameters)
	if result.Status == models.StatusSuccess && entry.Mutating {
		g.notify(ctx, req, result)
	}
	return result
}

func (g *Gate) checkToken(req models.ConfirmationRequest) error {
	if g.signer == nil {
		return nil
	}
	if req.Token == "" && !g.requireToken {
		return nil
	}
	return g.signer.Verify(req.Token, req.Operation, req.Parameters)
}

func (g *Gate) notify(ctx context.Context, req models.ConfirmationRequest, result models.ExecutionResult) {
	if g.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	if err := g.notifier.NotifyExecution(ctx, req.Operation, req.Parameters, result); err != nil {
		g.logger.Warn("execution notification failed", map[string]interface{}{
			"operation": req.Operation,
			"error":     err.Error(),
		})
	}
}

// operationLabel keeps caller-supplied names out of metric labels.
func (g *Gate) operationLabel(operation string) string {
	if _, ok := g.catalog.Lookup(operation); ok {
		return operation
	}
	return string(models.IntentUnknown)
}

func errorResult(message string) models.ExecutionResult {
	return models.ExecutionResult{Status: models.StatusError, Message: message}
}
