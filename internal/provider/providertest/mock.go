// Package providertest holds a testify mock of provider.Provider.
package providertest

import (
	"context"

	"github.com/stretchr/testify/mock"

	"cloudops-agent/internal/models"
)

type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) CreateVM(ctx context.Context, name, flavor string) (string, error) {
	args := m.Called(ctx, name, flavor)
	return args.String(0), args.Error(1)
}

func (m *MockProvider) ResizeVM(ctx context.Context, name, flavor string) error {
	args := m.Called(ctx, name, flavor)
	return args.Error(0)
}

func (m *MockProvider) DeleteVM(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

func (m *MockProvider) CreateNetwork(ctx context.Context, name string) (*models.NetworkResult, error) {
	args := m.Called(ctx, name)
	if r := args.Get(0); r != nil {
		return r.(*models.NetworkResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockProvider) CreateVolume(ctx context.Context, name string, sizeGB int) (string, error) {
	args := m.Called(ctx, name, sizeGB)
	return args.String(0), args.Error(1)
}

func (m *MockProvider) DeleteVolume(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

func (m *MockProvider) GetUsage(ctx context.Context) (*models.Usage, error) {
	args := m.Called(ctx)
	if u := args.Get(0); u != nil {
		return u.(*models.Usage), args.Error(1)
	}
	return nil, args.Error(1)
}
