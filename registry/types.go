// Package registry implements the OCI Distribution Specification v2
// HTTP protocol: blob upload (monolithic and chunked), manifest
// CRUD, tag listing, and the auth-challenge retry loop, following
// oras-py's provider.py and utils/request.py.
package registry

import (
	"net/http"
	"time"

	"github.com/bibin-skaria/orascore/auth"
	"github.com/bibin-skaria/orascore/internal/config"
	"github.com/bibin-skaria/orascore/reference"
)

// Descriptor mirrors the subset of an OCI descriptor the registry
// layer needs to address a blob or manifest; callers in higher-level
// packages convert from oci.Descriptor at the boundary.
type Descriptor struct {
	MediaType string
	Digest    string
	Size      int64
}

// Client dispatches distribution API requests to a single registry
// host, handling the WWW-Authenticate challenge/retry dance and
// chunked upload session state transparently.
type Client struct {
	Scheme     string // fallback scheme for hosts Config has no override for
	HTTPClient *http.Client
	Store      *auth.Store
	ChunkSize  int64
	Config     config.ClientConfig // per-host Insecure overrides (Mirrors are not used); zero value means none

	// authBackends caches one Backend per (host, scheme) pair so a
	// Bearer token fetched for one request is reused by the next
	// instead of being re-exchanged on every call.
	authBackends map[string]auth.Backend
}

// NewClient returns a Client talking https by default, backed by
// store for credential resolution.
func NewClient(store *auth.Store) *Client {
	return &Client{
		Scheme:       "https",
		HTTPClient:   &http.Client{Timeout: 60 * time.Second},
		Store:        store,
		Config:       config.Default(),
		authBackends: map[string]auth.Backend{},
	}
}

// NewClientWithConfig returns a Client whose per-host scheme and
// chunk size are driven by cfg (loaded via config.Load), falling back
// to NewClient's defaults for anything cfg leaves unset.
func NewClientWithConfig(store *auth.Store, cfg config.ClientConfig) *Client {
	c := NewClient(store)
	c.Config = cfg
	if cfg.ChunkSizeBytes > 0 {
		c.ChunkSize = cfg.ChunkSizeBytes
	}
	return c
}

// schemeFor resolves the scheme to use for ref's registry host: an
// explicit per-host Insecure override in Config wins, then the
// Client-wide fallback, then Config's own zero-value default.
func (c *Client) schemeFor(ref reference.Container) string {
	if _, ok := c.Config.Hosts[ref.Registry]; ok {
		return c.Config.SchemeFor(ref.Registry)
	}
	if c.Scheme != "" {
		return c.Scheme
	}
	return c.Config.SchemeFor(ref.Registry)
}
