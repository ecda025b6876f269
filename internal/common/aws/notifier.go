package aws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	appconfig "cloudops-agent/internal/common/config"
	"cloudops-agent/internal/common/logger"
	"cloudops-agent/internal/models"
)

// Notifier announces executed operations on an SNS topic and by email.
type Notifier struct {
	sns      *SNSClient
	topicARN string

	ses  *SESClient
	from string
	to   []string

	logger logger.Logger
}

// NewNotifier returns nil when neither channel is enabled.
func NewNotifier(ctx context.Context, cfg appconfig.NotificationConfig, log logger.Logger) (*Notifier, error) {
	if !cfg.SNS.Enabled && !cfg.SES.Enabled {
		return nil, nil
	}

	n := &Notifier{logger: logger.Component(log, "notifier")}
	if cfg.SNS.Enabled {
		client, err := NewSNSClient(ctx, cfg.AWS.Region)
		if err != nil {
			return nil, fmt.Errorf("sns client: %w", err)
		}
		n.sns = client
		n.topicARN = cfg.SNS.TopicARN
	}
	if cfg.SES.Enabled {
		client, err := NewSESClient(ctx, cfg.AWS.Region)
		if err != nil {
			return nil, fmt.Errorf("ses client: %w", err)
		}
		n.ses = client
		n.from = cfg.SES.FromEmail
		n.to = cfg.SES.To
	}
	return n, nil
}

type executionEvent struct {
	Operation  string                 `json:"operation"`
	Parameters models.EntitySet       `json:"parameters"`
	Status     string                 `json:"status"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

// NotifyExecution publishes to every enabled channel and reports all failures.
func (n *Notifier) NotifyExecution(ctx context.Context, operation string, params models.EntitySet, result models.ExecutionResult) error {
	subject := fmt.Sprintf("cloudops: %s %s", operation, result.Status)
	payload, err := json.Marshal(executionEvent{
		Operation:  operation,
		Parameters: params,
		Status:     string(result.Status),
		Message:    result.Message,
		Details:    result.Details,
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	var errs []error
	if n.sns != nil {
		id, err := n.sns.PublishToTopic(ctx, n.topicARN, subject, string(payload))
		if err != nil {
			errs = append(errs, fmt.Errorf("sns publish: %w", err))
		} else {
			n.logger.Debug("execution published", map[string]interface{}{"operation": operation, "messageId": id})
		}
	}
	if n.ses != nil && len(n.to) > 0 {
		body := fmt.Sprintf("%s\n\n%s", result.Message, payload)
		if err := n.ses.SendText(ctx, n.from, n.to, subject, body); err != nil {
			errs = append(errs, fmt.Errorf("ses send: %w", err))
		}
	}
	return errors.Join(errs...)
}
