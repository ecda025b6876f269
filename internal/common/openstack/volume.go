package openstack

import (
	"context"
	"fmt"

	"github.com/gophercloud/gophercloud/v2/openstack/blockstorage/v3/volumes"
	"github.com/gophercloud/gophercloud/v2/pagination"

	apperrors "cloudops-agent/internal/common/errors"
)

func (c *Client) CreateVolume(ctx context.Context, name string, sizeGB int) (string, error) {
	sc, err := c.blockStorage(ctx)
	if err != nil {
		return "", err
	}
	v, err := volumes.Create(ctx, sc, volumes.CreateOpts{Name: name, Size: sizeGB}, nil).Extract()
	if err != nil {
		return "", providerError(serviceVolume, err, "")
	}
	return v.ID, nil
}

func (c *Client) findVolume(ctx context.Context, name string) (*volumes.Volume, error) {
	sc, err := c.blockStorage(ctx)
	if err != nil {
		return nil, err
	}

	var found *volumes.Volume
	err = volumes.List(sc, volumes.ListOpts{Name: name}).EachPage(ctx, func(_ context.Context, page pagination.Page) (bool, error) {
		list, err := volumes.ExtractVolumes(page)
		if err != nil {
			return false, err
		}
		for i := range list {
			if list[i].Name == name {
				found = &list[i]
				return false, nil
			}
		}
		return true, nil
	})
	if err != nil {
		return nil, providerError(serviceVolume, err, "")
	}
	if found == nil {
		return nil, apperrors.NewProviderNotFoundError(fmt.Sprintf("Volume %s not found", name), nil)
	}
	return found, nil
}

func (c *Client) DeleteVolume(ctx context.Context, name string) error {
	v, err := c.findVolume(ctx, name)
	if err != nil {
		return err
	}

	sc, err := c.blockStorage(ctx)
	if err != nil {
		return err
	}
	err = volumes.Delete(ctx, sc, v.ID, volumes.DeleteOpts{}).ExtractErr()
	return providerError(serviceVolume, err, fmt.Sprintf("Volume %s not found", name))
}
