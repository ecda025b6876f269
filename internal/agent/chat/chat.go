// Package chat answers free-text messages: it detects the intent, proposes
// state-changing operations for confirmation and answers usage questions
// directly.
package chat

import (
	"context"
	"fmt"
	"strings"

	"cloudops-agent/internal/agent/audit"
	"cloudops-agent/internal/agent/catalog"
	"cloudops-agent/internal/agent/extractor"
	"cloudops-agent/internal/agent/gate"
	apperrors "cloudops-agent/internal/common/errors"
	"cloudops-agent/internal/common/logger"
	"cloudops-agent/internal/common/metrics"
	"cloudops-agent/internal/models"
)

// UsageReader fetches live project usage. *dispatcher.Dispatcher satisfies it.
type UsageReader interface {
	Usage(ctx context.Context) (*models.Usage, error)
}

type Service struct {
	extractor *extractor.Extractor
	catalog   *catalog.Catalog
	usage     UsageReader
	audit     *audit.Log
	signer    *gate.Signer
	logger    logger.Logger
}

// New builds the chat service. signer may be nil, in which case proposals
// carry no token.
func New(ex *extractor.Extractor, c *catalog.Catalog, usage UsageReader, auditLog *audit.Log, signer *gate.Signer, log logger.Logger) *Service {
	return &Service{
		extractor: ex,
		catalog:   c,
		usage:     usage,
		audit:     auditLog,
		signer:    signer,
		logger:    logger.Component(log, "chat"),
	}
}

// Handle answers one message and records exactly one audit entry for it.
// The returned error is non-nil only when the audit write failed.
func (s *Service) Handle(ctx context.Context, message string) (models.ChatResponse, error) {
	var resp models.ChatResponse
	_, err := s.audit.Track(ctx, message, func(rec *models.InteractionRecord) error {
		intent, entities := s.extractor.Extract(message)
		rec.DetectedIntent = string(intent)
		rec.Entities = entities

		metrics.IntentsDetected.WithLabelValues(string(intent)).Inc()
		s.logger.Debug("intent detected", map[string]interface{}{
			"intent":   string(intent),
			"entities": entities,
		})

		resp = s.respond(ctx, rec, intent, entities)
		rec.SystemResponse = resp.Message
		return nil
	})
	if err != nil {
		return models.ChatResponse{}, err
	}
	return resp, nil
}

func (s *Service) respond(ctx context.Context, rec *models.InteractionRecord, intent models.Intent, entities models.EntitySet) models.ChatResponse {
	entry, ok := s.catalog.Lookup(string(intent))
	if !ok {
		return models.ChatResponse{Message: catalog.UnknownMessage}
	}

	if intent == models.IntentGetUsage {
		return s.answerUsage(ctx, rec)
	}

	if missing := entry.Missing(entities); len(missing) > 0 {
		prompt := entry.MissingPrompt
		if prompt == "" {
			prompt = fmt.Sprintf("Please provide the %s for this operation.", strings.Join(missing, " and "))
		}
		return models.ChatResponse{Message: prompt}
	}

	proposal := models.ProposedOperation{
		Intent:           intent,
		Entities:         entities,
		ConfirmationText: s.catalog.Describe(intent, entities),
	}
	resp := proposal.ChatResponse()
	if s.signer != nil {
		resp.Token = s.signer.Sign(string(intent), entities)
	}
	return resp
}

func (s *Service) answerUsage(ctx context.Context, rec *models.InteractionRecord) models.ChatResponse {
	usage, err := s.usage.Usage(ctx)
	if err != nil {
		message := fmt.Sprintf("Failed to get usage: %s", apperrors.MessageOf(err))
		rec.MarkExecuted(string(models.IntentGetUsage), map[string]interface{}{
			"status":  string(models.StatusError),
			"message": message,
		})
		return models.ChatResponse{Message: message}
	}

	rec.MarkExecuted(string(models.IntentGetUsage), usage.AsMap())
	return models.ChatResponse{Message: catalog.FormatUsage(usage)}
}
