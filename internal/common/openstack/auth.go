package openstack

import (
	"context"
	"strings"

	"github.com/gophercloud/gophercloud/v2"
	gcopenstack "github.com/gophercloud/gophercloud/v2/openstack"
)

// Credentials mirrors the OS_* variables of the OpenStack CLI. A non-empty
// Token is used as is; otherwise a project scoped password token is issued
// and renewed by the SDK when the cloud rejects it.
type Credentials struct {
	AuthURL        string
	Token          string
	Username       string
	Password       string
	ProjectID      string
	UserDomainName string
	Region         string
}

// identityBase points the SDK straight at Keystone v3 so it skips version
// discovery.
func identityBase(authURL string) string {
	u := strings.TrimRight(authURL, "/")
	if !strings.HasSuffix(u, "/v3") {
		u += "/v3"
	}
	return u + "/"
}

func (c Credentials) authOptions() gophercloud.AuthOptions {
	if c.Token != "" {
		return gophercloud.AuthOptions{
			IdentityEndpoint: identityBase(c.AuthURL),
			TokenID:          c.Token,
		}
	}

	domain := c.UserDomainName
	if domain == "" {
		domain = "Default"
	}
	return gophercloud.AuthOptions{
		IdentityEndpoint: identityBase(c.AuthURL),
		Username:         c.Username,
		Password:         c.Password,
		DomainName:       domain,
		Scope:            &gophercloud.AuthScope{ProjectID: c.ProjectID},
		AllowReauth:      true,
	}
}

// session returns the authenticated provider client, authenticating on first
// use. A failed attempt is not cached.
func (c *Client) session(ctx context.Context) (*gophercloud.ProviderClient, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.provider != nil {
		return c.provider, nil
	}

	opts := c.creds.authOptions()
	pc, err := gcopenstack.NewClient(opts.IdentityEndpoint)
	if err != nil {
		return nil, providerError(serviceIdentity, err, "")
	}
	pc.HTTPClient = *c.http.HTTPClient()
	pc.UserAgent.Prepend(userAgent)

	if err := gcopenstack.Authenticate(ctx, pc, opts); err != nil {
		return nil, providerError(serviceIdentity, err, "")
	}
	c.provider = pc
	return pc, nil
}

func (c *Client) endpointOpts() gophercloud.EndpointOpts {
	return gophercloud.EndpointOpts{
		Region:       c.creds.Region,
		Availability: gophercloud.AvailabilityPublic,
	}
}

func (c *Client) compute(ctx context.Context) (*gophercloud.ServiceClient, error) {
	pc, err := c.session(ctx)
	if err != nil {
		return nil, err
	}
	sc, err := gcopenstack.NewComputeV2(pc, c.endpointOpts())
	if err != nil {
		return nil, providerError(serviceCompute, err, "")
	}
	return sc, nil
}

func (c *Client) image(ctx context.Context) (*gophercloud.ServiceClient, error) {
	pc, err := c.session(ctx)
	if err != nil {
		return nil, err
	}
	sc, err := gcopenstack.NewImageV2(pc, c.endpointOpts())
	if err != nil {
		return nil, providerError(serviceImage, err, "")
	}
	return sc, nil
}

func (c *Client) network(ctx context.Context) (*gophercloud.ServiceClient, error) {
	pc, err := c.session(ctx)
	if err != nil {
		return nil, err
	}
	sc, err := gcopenstack.NewNetworkV2(pc, c.endpointOpts())
	if err != nil {
		return nil, providerError(serviceNetwork, err, "")
	}
	return sc, nil
}

func (c *Client) blockStorage(ctx context.Context) (*gophercloud.ServiceClient, error) {
	pc, err := c.session(ctx)
	if err != nil {
		return nil, err
	}
	sc, err := gcopenstack.NewBlockStorageV3(pc, c.endpointOpts())
	if err != nil {
		return nil, providerError(serviceVolume, err, "")
	}
	return sc, nil
}
