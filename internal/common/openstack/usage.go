package openstack

import (
	"context"
	"fmt"

	"github.com/gophercloud/gophercloud/v2/openstack/blockstorage/v3/volumes"
	"github.com/gophercloud/gophercloud/v2/openstack/compute/v2/flavors"
	"github.com/gophercloud/gophercloud/v2/openstack/compute/v2/servers"

	"cloudops-agent/internal/models"
)

// GetUsage sums vCPUs and RAM over every server of the project and size over
// every volume, following pagination links to the last page.
func (c *Client) GetUsage(ctx context.Context) (*models.Usage, error) {
	compute, err := c.compute(ctx)
	if err != nil {
		return nil, err
	}

	pages, err := servers.List(compute, servers.ListOpts{}).AllPages(ctx)
	if err != nil {
		return nil, providerError(serviceCompute, err, "")
	}
	list, err := servers.ExtractServers(pages)
	if err != nil {
		return nil, providerError(serviceCompute, err, "")
	}

	usage := &models.Usage{VMCount: len(list)}
	sizes := make(map[string]*flavors.Flavor)
	for _, s := range list {
		flavorID, _ := s.Flavor["id"].(string)
		f, ok := sizes[flavorID]
		if !ok {
			f, err = flavors.Get(ctx, compute, flavorID).Extract()
			if err != nil {
				return nil, providerError(serviceCompute, err, fmt.Sprintf("Flavor %s of VM %s not found", flavorID, s.Name))
			}
			sizes[flavorID] = f
		}
		usage.VCPUs += f.VCPUs
		usage.RAMMB += f.RAM
	}

	storage, err := c.blockStorage(ctx)
	if err != nil {
		return nil, err
	}
	pages, err = volumes.List(storage, volumes.ListOpts{}).AllPages(ctx)
	if err != nil {
		return nil, providerError(serviceVolume, err, "")
	}
	vols, err := volumes.ExtractVolumes(pages)
	if err != nil {
		return nil, providerError(serviceVolume, err, "")
	}
	usage.VolumeCount = len(vols)
	for _, v := range vols {
		usage.VolumesGB += v.Size
	}
	return usage, nil
}
