package audit

import (
	"context"

	"cloudops-agent/internal/common/logger"
	"cloudops-agent/internal/common/metrics"
	"cloudops-agent/internal/models"
)

// FanOut writes to a primary store and then copies the record to mirrors.
// Only the primary decides success; a failing mirror is logged and counted.
type FanOut struct {
	primary Store
	mirrors []Store
	logger  logger.Logger
}

func NewFanOut(primary Store, log logger.Logger, mirrors ...Store) *FanOut {
	return &FanOut{
		primary: primary,
		mirrors: mirrors,
		logger:  logger.Component(log, "audit"),
	}
}

func (f *FanOut) Append(ctx context.Context, rec *models.InteractionRecord) error {
	if err := f.primary.Append(ctx, rec); err != nil {
		return err
	}
	for _, m := range f.mirrors {
		copyRec := snapshot(rec)
		if err := m.Append(ctx, &copyRec); err != nil {
			metrics.AuditWritesFailed.WithLabelValues("mirror").Inc()
			f.logger.Warn("audit mirror append failed", map[string]interface{}{
				"id":    rec.ID,
				"error": err.Error(),
			})
		}
	}
	return nil
}

func (f *FanOut) List(ctx context.Context, limit int) ([]models.InteractionRecord, error) {
	return f.primary.List(ctx, limit)
}

// Search delegates to the first mirror that can search, then to the primary.
func (f *FanOut) Search(ctx context.Context, text string, limit int) ([]models.InteractionRecord, error) {
	for _, m := range f.mirrors {
		if s, ok := m.(Searcher); ok {
			return s.Search(ctx, text, limit)
		}
	}
	if s, ok := f.primary.(Searcher); ok {
		return s.Search(ctx, text, limit)
	}
	return nil, ErrSearchUnavailable
}
