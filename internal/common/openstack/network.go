package openstack

import (
	"context"

	"github.com/gophercloud/gophercloud/v2"
	"github.com/gophercloud/gophercloud/v2/openstack/networking/v2/networks"
	"github.com/gophercloud/gophercloud/v2/openstack/networking/v2/subnets"

	"cloudops-agent/internal/models"
)

// CreateNetwork provisions a private network and one IPv4 subnet named
// <name>-subnet on the configured CIDR.
func (c *Client) CreateNetwork(ctx context.Context, name string) (*models.NetworkResult, error) {
	sc, err := c.network(ctx)
	if err != nil {
		return nil, err
	}

	up := true
	net, err := networks.Create(ctx, sc, networks.CreateOpts{
		Name:         name,
		AdminStateUp: &up,
	}).Extract()
	if err != nil {
		return nil, providerError(serviceNetwork, err, "")
	}

	sub, err := subnets.Create(ctx, sc, subnets.CreateOpts{
		Name:      name + "-subnet",
		NetworkID: net.ID,
		IPVersion: gophercloud.IPv4,
		CIDR:      c.subnetCIDR,
	}).Extract()
	if err != nil {
		// Subnet creation failure leaves the network in place; it is reported
		// to the operator rather than rolled back.
		c.logger.Warn("subnet creation failed after network was created", map[string]interface{}{
			"network": net.ID,
			"error":   err.Error(),
		})
		return nil, providerError(serviceNetwork, err, "")
	}

	return &models.NetworkResult{
		Network: models.Network{
			ID:           net.ID,
			Name:         net.Name,
			AdminStateUp: net.AdminStateUp,
			Status:       net.Status,
		},
		Subnet: models.Subnet{
			ID:        sub.ID,
			Name:      sub.Name,
			NetworkID: sub.NetworkID,
			IPVersion: sub.IPVersion,
			CIDR:      sub.CIDR,
		},
	}, nil
}
