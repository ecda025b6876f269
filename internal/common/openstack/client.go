// Package openstack implements the infrastructure provider on gophercloud:
// Keystone v3 for auth, Nova for servers, Neutron for networks, Cinder for
// volumes and Glance for image lookup.
package openstack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gophercloud/gophercloud/v2"

	"cloudops-agent/internal/common/config"
	apperrors "cloudops-agent/internal/common/errors"
	chttp "cloudops-agent/internal/common/http"
	"cloudops-agent/internal/common/logger"
	"cloudops-agent/internal/provider"
)

const (
	DefaultSubnetCIDR = "192.168.1.0/24"
	userAgent         = "cloudops-agent"
)

// Service names used in error metadata and messages.
const (
	serviceIdentity = "identity"
	serviceCompute  = "compute"
	serviceNetwork  = "network"
	serviceVolume   = "volume"
	serviceImage    = "image"
)

var _ provider.Provider = (*Client)(nil)

// Client is a provider.Provider backed by an OpenStack project.
type Client struct {
	creds      Credentials
	http       *chttp.Client
	subnetCIDR string
	logger     logger.Logger

	mu       sync.Mutex
	provider *gophercloud.ProviderClient
}

// New builds a client from config. timeout bounds each HTTP round trip.
// Authentication happens on the first call.
func New(cfg config.OpenStackConfig, timeout time.Duration, log logger.Logger, opts ...chttp.Option) *Client {
	log = logger.Component(log, "openstack")
	if cfg.Insecure {
		opts = append([]chttp.Option{chttp.WithInsecureSkipVerify()}, opts...)
	}
	opts = append(opts, chttp.WithRequestLogging(log))

	cidr := cfg.SubnetCIDR
	if cidr == "" {
		cidr = DefaultSubnetCIDR
	}

	return &Client{
		creds: Credentials{
			AuthURL:        cfg.AuthURL,
			Token:          cfg.Token,
			Username:       cfg.Username,
			Password:       cfg.Password,
			ProjectID:      cfg.ProjectID,
			UserDomainName: cfg.UserDomainName,
			Region:         cfg.Region,
		},
		http:       chttp.NewClient(timeout, opts...),
		subnetCIDR: cidr,
		logger:     log,
	}
}

// providerError maps an SDK error to the provider taxonomy. notFound, when
// set, replaces the cloud's message on a 404.
func providerError(service string, err error, notFound string) error {
	if err == nil {
		return nil
	}

	var unexpected gophercloud.ErrUnexpectedResponseCode
	if errors.As(err, &unexpected) {
		if notFound != "" && gophercloud.ResponseCodeIs(err, http.StatusNotFound) {
			return apperrors.NewProviderNotFoundError(notFound, err).
				WithMetadata("http_status", unexpected.Actual).
				WithMetadata("service", service)
		}
		return statusError(service, unexpected.Actual, unexpected.Body, err)
	}

	var urlErr *url.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.As(err, &urlErr) {
		return transportError(service, err)
	}

	return apperrors.NewProviderError(fmt.Sprintf("OpenStack %s request failed: %s", service, err.Error()), err)
}

// transportError keeps err as the cause so a context deadline is still
// recognizable upstream.
func transportError(service string, err error) *apperrors.StandardError {
	return apperrors.NewProviderTransportError(fmt.Sprintf("OpenStack %s unreachable: %s", service, err.Error()), err)
}

// statusError maps an unsuccessful response to the provider taxonomy, keeping
// the cloud's own message where it sent one.
func statusError(service string, status int, body []byte, cause error) *apperrors.StandardError {
	message := faultMessage(bytes.NewReader(body))
	if message == "" && status == http.StatusUnauthorized {
		message = "OpenStack rejected the auth token"
	}
	if message == "" {
		message = fmt.Sprintf("OpenStack %s returned %d %s", service, status, http.StatusText(status))
	}

	var err *apperrors.StandardError
	switch status {
	case http.StatusNotFound:
		err = apperrors.NewProviderNotFoundError(message, cause)
	case http.StatusForbidden, http.StatusRequestEntityTooLarge:
		if isQuotaMessage(message) || status == http.StatusRequestEntityTooLarge {
			err = apperrors.NewProviderQuotaExceededError(message, cause)
		} else {
			err = apperrors.NewProviderError(message, cause)
		}
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		err = apperrors.NewProviderTransportError(message, cause)
	default:
		err = apperrors.NewProviderError(message, cause)
	}
	return err.WithMetadata("http_status", status).WithMetadata("service", service)
}

func isQuotaMessage(message string) bool {
	lower := strings.ToLower(message)
	return strings.Contains(lower, "quota") || strings.Contains(lower, "limit exceeded")
}

// faultMessage extracts the message from the fault envelopes used across
// services: {"itemNotFound": {"message": ...}}, {"NeutronError": {...}},
// {"error": {"message": ...}} or a bare {"message": ...}.
func faultMessage(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 64<<10))
	if err != nil || len(raw) == 0 {
		return ""
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return ""
	}
	if msg, ok := doc["message"].(string); ok {
		return msg
	}
	for _, v := range doc {
		if fault, ok := v.(map[string]interface{}); ok {
			if msg, ok := fault["message"].(string); ok {
				return msg
			}
		}
	}
	return ""
}
