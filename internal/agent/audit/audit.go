// Package audit is the append-only interaction log. Every chat and confirm
// call produces exactly one record, written before the response is sent.
package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "cloudops-agent/internal/common/errors"
	"cloudops-agent/internal/common/logger"
	"cloudops-agent/internal/common/metrics"
	"cloudops-agent/internal/models"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

var ErrSearchUnavailable = errors.New("interaction search is not configured")

// Store persists records. Append assigns ID (and Timestamp when unset) and
// must never modify a previously stored record.
type Store interface {
	Append(ctx context.Context, rec *models.InteractionRecord) error
	List(ctx context.Context, limit int) ([]models.InteractionRecord, error)
}

// Searcher is implemented by stores that support text lookup.
type Searcher interface {
	Search(ctx context.Context, text string, limit int) ([]models.InteractionRecord, error)
}

// Log scopes one record to one call.
type Log struct {
	store  Store
	logger logger.Logger
	now    func() time.Time
}

func NewLog(store Store, log logger.Logger) *Log {
	return &Log{
		store:  store,
		logger: logger.Component(log, "audit"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Track opens a record for userMessage, lets fn fill it in and appends it
// exactly once on every exit path, including a panic in fn. An append failure
// is returned as PERSISTENCE_FAILED and takes precedence over fn's error.
func (l *Log) Track(ctx context.Context, userMessage string, fn func(rec *models.InteractionRecord) error) (rec *models.InteractionRecord, err error) {
	rec = &models.InteractionRecord{
		Timestamp:   l.now(),
		UserMessage: userMessage,
		Entities:    models.EntitySet{},
	}

	defer func() {
		if p := recover(); p != nil {
			rec.SystemResponse = fmt.Sprintf("internal error: %v", p)
			_ = l.append(ctx, rec)
			panic(p)
		}
		if appendErr := l.append(ctx, rec); appendErr != nil {
			err = appendErr
		}
	}()

	return rec, fn(rec)
}

func (l *Log) append(ctx context.Context, rec *models.InteractionRecord) error {
	// The record is written even if the caller's context was cancelled mid-call.
	ctx = context.WithoutCancel(ctx)
	if err := l.store.Append(ctx, rec); err != nil {
		metrics.AuditWritesFailed.WithLabelValues("primary").Inc()
		l.logger.Error("audit append failed", map[string]interface{}{
			"intent": rec.DetectedIntent,
			"error":  err.Error(),
		})
		return apperrors.NewPersistenceError(err)
	}
	l.logger.Debug("audit record appended", map[string]interface{}{
		"id":     rec.ID,
		"intent": rec.DetectedIntent,
	})
	return nil
}

// Recent returns up to limit records, newest first.
func (l *Log) Recent(ctx context.Context, limit int) ([]models.InteractionRecord, error) {
	return l.store.List(ctx, ClampLimit(limit))
}

// ClampLimit normalizes a caller-supplied page size.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

// Search looks up records by message text when the store supports it.
func (l *Log) Search(ctx context.Context, text string, limit int) ([]models.InteractionRecord, error) {
	s, ok := l.store.(Searcher)
	if !ok {
		return nil, ErrSearchUnavailable
	}
	return s.Search(ctx, text, ClampLimit(limit))
}
