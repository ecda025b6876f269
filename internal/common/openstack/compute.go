package openstack

import (
	"context"
	"fmt"
	"regexp"

	"github.com/gophercloud/gophercloud/v2/openstack/compute/v2/flavors"
	"github.com/gophercloud/gophercloud/v2/openstack/compute/v2/servers"
	"github.com/gophercloud/gophercloud/v2/openstack/image/v2/images"
	"github.com/gophercloud/gophercloud/v2/pagination"

	apperrors "cloudops-agent/internal/common/errors"
)

// findFlavor resolves a flavor by its exact name, walking every page.
func (c *Client) findFlavor(ctx context.Context, name string) (*flavors.Flavor, error) {
	sc, err := c.compute(ctx)
	if err != nil {
		return nil, err
	}

	var found *flavors.Flavor
	err = flavors.ListDetail(sc, flavors.ListOpts{}).EachPage(ctx, func(_ context.Context, page pagination.Page) (bool, error) {
		list, err := flavors.ExtractFlavors(page)
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
		return nil, providerError(serviceCompute, err, "")
	}
	if found == nil {
		return nil, apperrors.NewProviderNotFoundError(fmt.Sprintf("Flavor %s not found", name), nil)
	}
	return found, nil
}

// firstImage returns the first active image the project can boot from.
func (c *Client) firstImage(ctx context.Context) (string, error) {
	sc, err := c.image(ctx)
	if err != nil {
		return "", err
	}

	var id string
	err = images.List(sc, images.ListOpts{}).EachPage(ctx, func(_ context.Context, page pagination.Page) (bool, error) {
		list, err := images.ExtractImages(page)
		if err != nil {
			return false, err
		}
		for _, img := range list {
			if img.Status == images.ImageStatusActive {
				id = img.ID
				return false, nil
			}
		}
		return true, nil
	})
	if err != nil {
		return "", providerError(serviceImage, err, "")
	}
	if id == "" {
		return "", apperrors.NewProviderError("No images available", nil)
	}
	return id, nil
}

// findServer resolves a server by exact name. Nova treats the name filter as
// a regular expression, so it is anchored and escaped.
func (c *Client) findServer(ctx context.Context, name string) (*servers.Server, error) {
	sc, err := c.compute(ctx)
	if err != nil {
		return nil, err
	}

	opts := servers.ListOpts{Name: "^" + regexp.QuoteMeta(name) + "$"}
	var found *servers.Server
	err = servers.List(sc, opts).EachPage(ctx, func(_ context.Context, page pagination.Page) (bool, error) {
		list, err := servers.ExtractServers(page)
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
		return nil, providerError(serviceCompute, err, "")
	}
	if found == nil {
		return nil, apperrors.NewProviderNotFoundError(fmt.Sprintf("VM %s not found", name), nil)
	}
	return found, nil
}

// CreateVM boots a server from the first available image.
func (c *Client) CreateVM(ctx context.Context, name, flavorName string) (string, error) {
	f, err := c.findFlavor(ctx, flavorName)
	if err != nil {
		return "", err
	}
	imageID, err := c.firstImage(ctx)
	if err != nil {
		return "", err
	}

	sc, err := c.compute(ctx)
	if err != nil {
		return "", err
	}
	s, err := servers.Create(ctx, sc, servers.CreateOpts{
		Name:      name,
		FlavorRef: f.ID,
		ImageRef:  imageID,
	}, nil).Extract()
	if err != nil {
		return "", providerError(serviceCompute, err, "")
	}
	return s.ID, nil
}

func (c *Client) ResizeVM(ctx context.Context, name, flavorName string) error {
	s, err := c.findServer(ctx, name)
	if err != nil {
		return err
	}
	f, err := c.findFlavor(ctx, flavorName)
	if err != nil {
		return err
	}

	sc, err := c.compute(ctx)
	if err != nil {
		return err
	}
	err = servers.Resize(ctx, sc, s.ID, servers.ResizeOpts{FlavorRef: f.ID}).ExtractErr()
	return providerError(serviceCompute, err, fmt.Sprintf("VM %s not found", name))
}

func (c *Client) DeleteVM(ctx context.Context, name string) error {
	s, err := c.findServer(ctx, name)
	if err != nil {
		return err
	}

	sc, err := c.compute(ctx)
	if err != nil {
		return err
	}
	err = servers.Delete(ctx, sc, s.ID).ExtractErr()
	return providerError(serviceCompute, err, fmt.Sprintf("VM %s not found", name))
}
