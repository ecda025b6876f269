// Package provider defines the infrastructure provider the dispatcher drives.
package provider

import (
	"context"

	"cloudops-agent/internal/models"
)

// Provider performs the actual cloud operations. Implementations report
// failures with the PROVIDER_* codes from internal/common/errors so the
// dispatcher can pass the provider's message through unchanged.
type Provider interface {
	CreateVM(ctx context.Context, name, flavor string) (string, error)
	ResizeVM(ctx context.Context, name, flavor string) error
	DeleteVM(ctx context.Context, name string) error
	CreateNetwork(ctx context.Context, name string) (*models.NetworkResult, error)
	CreateVolume(ctx context.Context, name string, sizeGB int) (string, error)
	DeleteVolume(ctx context.Context, name string) error
	GetUsage(ctx context.Context) (*models.Usage, error)
}
