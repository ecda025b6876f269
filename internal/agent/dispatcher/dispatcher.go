// Package dispatcher turns a confirmed operation into exactly one provider
// call and normalizes the outcome.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"cloudops-agent/internal/agent/catalog"
	apperrors "cloudops-agent/internal/common/errors"
	"cloudops-agent/internal/common/logger"
	"cloudops-agent/internal/common/metrics"
	"cloudops-agent/internal/models"
	"cloudops-agent/internal/provider"
)

const DefaultTimeout = 30 * time.Second

type Dispatcher struct {
	provider provider.Provider
	catalog  *catalog.Catalog
	timeout  time.Duration
	tracer   trace.Tracer
	logger   logger.Logger
}

func New(p provider.Provider, c *catalog.Catalog, timeout time.Duration, tracer trace.Tracer, log logger.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if tracer == nil {
		tracer = otel.Tracer("cloudops-agent/dispatcher")
	}
	return &Dispatcher{
		provider: p,
		catalog:  c,
		timeout:  timeout,
		tracer:   tracer,
		logger:   logger.Component(log, "dispatcher"),
	}
}

// Execute runs operation with the caller's parameters and never returns an
// error: failures become a StatusError result carrying the provider message.
func (d *Dispatcher) Execute(ctx context.Context, operation string, params models.EntitySet) models.ExecutionResult {
	if models.Intent(operation) == models.IntentGetUsage {
		usage, err := d.Usage(ctx)
		if err != nil {
			return errorResult(err)
		}
		return models.ExecutionResult{
			Status:  models.StatusSuccess,
			Message: catalog.FormatUsage(usage),
			Details: usage.AsMap(),
		}
	}

	details, err := d.Run(ctx, operation, params)
	if err != nil {
		return errorResult(err)
	}
	return models.ExecutionResult{
		Status:  models.StatusSuccess,
		Message: d.catalog.Success(models.Intent(operation), params),
		Details: details,
	}
}

func errorResult(err error) models.ExecutionResult {
	return models.ExecutionResult{
		Status:  models.StatusError,
		Message: apperrors.MessageOf(err),
	}
}

// Run performs the provider call for operation and returns the details map
// reported to the caller, or a classified error.
func (d *Dispatcher) Run(ctx context.Context, operation string, params models.EntitySet) (map[string]interface{}, error) {
	if _, ok := d.catalog.Lookup(operation); !ok {
		return nil, apperrors.NewUnknownOperationError(operation)
	}

	switch models.Intent(operation) {
	case models.IntentCreateVM:
		name, flavor, err := nameAndFlavor(params)
		if err != nil {
			return nil, err
		}
		var id string
		err = d.call(ctx, operation, func(ctx context.Context) error {
			var callErr error
			id, callErr = d.provider.CreateVM(ctx, name, flavor)
			return callErr
		})
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"status": "creating", "id": id, "name": name}, nil

	case models.IntentResizeVM:
		name, flavor, err := nameAndFlavor(params)
		if err != nil {
			return nil, err
		}
		err = d.call(ctx, operation, func(ctx context.Context) error {
			return d.provider.ResizeVM(ctx, name, flavor)
		})
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"status": "resizing", "name": name, "flavor": flavor}, nil

	case models.IntentDeleteVM:
		name, err := requireString(params, models.EntityName)
		if err != nil {
			return nil, err
		}
		err = d.call(ctx, operation, func(ctx context.Context) error {
			return d.provider.DeleteVM(ctx, name)
		})
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"status": "deleted", "name": name}, nil

	case models.IntentCreateNetwork:
		name, err := requireString(params, models.EntityName)
		if err != nil {
			return nil, err
		}
		var result *models.NetworkResult
		err = d.call(ctx, operation, func(ctx context.Context) error {
			var callErr error
			result, callErr = d.provider.CreateNetwork(ctx, name)
			return callErr
		})
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"network": result.Network, "subnet": result.Subnet}, nil

	case models.IntentCreateVolume:
		name, err := requireString(params, models.EntityName)
		if err != nil {
			return nil, err
		}
		size, err := params.Int(models.EntitySize)
		if err != nil {
			return nil, apperrors.NewValidationError("Invalid volume size", err.Error())
		}
		if size <= 0 {
			return nil, apperrors.NewValidationError("Invalid volume size", "size must be positive")
		}
		var id string
		err = d.call(ctx, operation, func(ctx context.Context) error {
			var callErr error
			id, callErr = d.provider.CreateVolume(ctx, name, size)
			return callErr
		})
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"status": "creating", "id": id, "name": name, "size": size}, nil

	case models.IntentDeleteVolume:
		name, err := requireString(params, models.EntityName)
		if err != nil {
			return nil, err
		}
		err = d.call(ctx, operation, func(ctx context.Context) error {
			return d.provider.DeleteVolume(ctx, name)
		})
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"status": "deleted", "name": name}, nil

	case models.IntentGetUsage:
		usage, err := d.Usage(ctx)
		if err != nil {
			return nil, err
		}
		return usage.AsMap(), nil
	}

	return nil, apperrors.NewUnknownOperationError(operation)
}

// Usage fetches the project usage snapshot under the same timeout and tracing.
func (d *Dispatcher) Usage(ctx context.Context) (*models.Usage, error) {
	var usage *models.Usage
	err := d.call(ctx, string(models.IntentGetUsage), func(ctx context.Context) error {
		var callErr error
		usage, callErr = d.provider.GetUsage(ctx)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return usage, nil
}

type callResult struct {
	err error
}

// call runs fn once under the provider timeout. A provider that ignores its
// context is abandoned when the deadline passes; fn is never retried.
func (d *Dispatcher) call(ctx context.Context, operation string, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	ctx, span := d.tracer.Start(ctx, "provider."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("cloudops.operation", operation)),
	)
	defer span.End()

	start := time.Now()
	done := make(chan callResult, 1)
	go func() {
		done <- callResult{err: fn(ctx)}
	}()

	var err error
	select {
	case res := <-done:
		err = res.err
	case <-ctx.Done():
		err = ctx.Err()
	}
	err = d.classify(operation, err)

	elapsed := time.Since(start)
	metrics.ProviderCallDuration.WithLabelValues(operation).Observe(elapsed.Seconds())

	if err != nil {
		code := apperrors.CodeOf(err)
		metrics.ProviderCallsTotal.WithLabelValues(operation, string(code)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, apperrors.MessageOf(err))
		span.SetAttributes(attribute.String("cloudops.error_code", string(code)))
		d.logger.Warn("provider call failed", map[string]interface{}{
			"operation":  operation,
			"errorCode":  string(code),
			"error":      err.Error(),
			"durationMs": elapsed.Milliseconds(),
		})
		return err
	}

	metrics.ProviderCallsTotal.WithLabelValues(operation, metrics.OK).Inc()
	span.SetStatus(codes.Ok, "")
	d.logger.Info("provider call succeeded", map[string]interface{}{
		"operation":  operation,
		"durationMs": elapsed.Milliseconds(),
	})
	return nil
}

func (d *Dispatcher) classify(operation string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewProviderTimeoutError(operation, d.timeout, err)
	}
	if _, ok := apperrors.AsStandard(err); ok {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return apperrors.NewProviderError(fmt.Sprintf("Provider call %s was cancelled", operation), err)
	}
	return apperrors.NewProviderError(err.Error(), err)
}

func nameAndFlavor(params models.EntitySet) (string, string, error) {
	name, err := requireString(params, models.EntityName)
	if err != nil {
		return "", "", err
	}
	flavor, err := requireString(params, models.EntityFlavor)
	if err != nil {
		return "", "", err
	}
	return name, flavor, nil
}

func requireString(params models.EntitySet, key string) (string, error) {
	v := params.String(key)
	if v == "" {
		return "", apperrors.NewValidationError(fmt.Sprintf("Missing required parameter: %s", key), "")
	}
	return v, nil
}
