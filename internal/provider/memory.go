package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	apperrors "cloudops-agent/internal/common/errors"
	"cloudops-agent/internal/models"
)

// FlavorSpec is the compute size behind a flavor name.
type FlavorSpec struct {
	VCPUs int
	RAMMB int
}

// DefaultFlavorSpecs backs the memory provider when no table is given.
var DefaultFlavorSpecs = map[string]FlavorSpec{
	"default-flavor": {VCPUs: 1, RAMMB: 2048},
	"S.4":            {VCPUs: 1, RAMMB: 4096},
	"M.8":            {VCPUs: 2, RAMMB: 8192},
}

// Quota caps the memory provider's project. Zero means unlimited.
type Quota struct {
	VCPUs     int
	VolumesGB int
}

type memoryServer struct {
	id     string
	flavor string
}

type memoryVolume struct {
	id   string
	size int
}

// MemoryProvider keeps resources in process. It backs local development and
// the tests of everything above the provider boundary.
type MemoryProvider struct {
	mu         sync.Mutex
	flavors    map[string]FlavorSpec
	quota      Quota
	subnetCIDR string
	servers    map[string]memoryServer
	volumes    map[string]memoryVolume
	networks   map[string]models.NetworkResult
}

func NewMemoryProvider(flavors map[string]FlavorSpec, quota Quota, subnetCIDR string) *MemoryProvider {
	if len(flavors) == 0 {
		flavors = DefaultFlavorSpecs
	}
	if subnetCIDR == "" {
		subnetCIDR = "192.168.1.0/24"
	}
	return &MemoryProvider{
		flavors:    flavors,
		quota:      quota,
		subnetCIDR: subnetCIDR,
		servers:    make(map[string]memoryServer),
		volumes:    make(map[string]memoryVolume),
		networks:   make(map[string]models.NetworkResult),
	}
}

func (p *MemoryProvider) CreateVM(ctx context.Context, name, flavor string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	spec, ok := p.flavors[flavor]
	if !ok {
		return "", apperrors.NewProviderNotFoundError(fmt.Sprintf("Flavor %s not found", flavor), nil)
	}
	if p.quota.VCPUs > 0 && p.usageLocked().VCPUs+spec.VCPUs > p.quota.VCPUs {
		return "", apperrors.NewProviderQuotaExceededError(
			fmt.Sprintf("Quota exceeded for cores: requested %d, quota %d", spec.VCPUs, p.quota.VCPUs), nil)
	}

	id := uuid.NewString()
	p.servers[name] = memoryServer{id: id, flavor: flavor}
	return id, nil
}

func (p *MemoryProvider) ResizeVM(ctx context.Context, name, flavor string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	server, ok := p.servers[name]
	if !ok {
		return apperrors.NewProviderNotFoundError(fmt.Sprintf("VM %s not found", name), nil)
	}
	if _, ok := p.flavors[flavor]; !ok {
		return apperrors.NewProviderNotFoundError(fmt.Sprintf("Flavor %s not found", flavor), nil)
	}
	server.flavor = flavor
	p.servers[name] = server
	return nil
}

func (p *MemoryProvider) DeleteVM(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.servers[name]; !ok {
		return apperrors.NewProviderNotFoundError(fmt.Sprintf("VM %s not found", name), nil)
	}
	delete(p.servers, name)
	return nil
}

func (p *MemoryProvider) CreateNetwork(ctx context.Context, name string) (*models.NetworkResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	networkID := uuid.NewString()
	result := models.NetworkResult{
		Network: models.Network{
			ID:           networkID,
			Name:         name,
			AdminStateUp: true,
			Status:       "ACTIVE",
		},
		Subnet: models.Subnet{
			ID:        uuid.NewString(),
			Name:      name + "-subnet",
			NetworkID: networkID,
			IPVersion: 4,
			CIDR:      p.subnetCIDR,
		},
	}
	p.networks[name] = result
	return &result, nil
}

func (p *MemoryProvider) CreateVolume(ctx context.Context, name string, sizeGB int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.quota.VolumesGB > 0 && p.usageLocked().VolumesGB+sizeGB > p.quota.VolumesGB {
		return "", apperrors.NewProviderQuotaExceededError(
			fmt.Sprintf("Quota exceeded for gigabytes: requested %d, quota %d", sizeGB, p.quota.VolumesGB), nil)
	}

	id := uuid.NewString()
	p.volumes[name] = memoryVolume{id: id, size: sizeGB}
	return id, nil
}

func (p *MemoryProvider) DeleteVolume(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.volumes[name]; !ok {
		return apperrors.NewProviderNotFoundError(fmt.Sprintf("Volume %s not found", name), nil)
	}
	delete(p.volumes, name)
	return nil
}

func (p *MemoryProvider) GetUsage(ctx context.Context) (*models.Usage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	usage := p.usageLocked()
	return &usage, nil
}

func (p *MemoryProvider) usageLocked() models.Usage {
	var u models.Usage
	for _, s := range p.servers {
		spec := p.flavors[s.flavor]
		u.VCPUs += spec.VCPUs
		u.RAMMB += spec.RAMMB
		u.VMCount++
	}
	for _, v := range p.volumes {
		u.VolumesGB += v.size
		u.VolumeCount++
	}
	return u
}
