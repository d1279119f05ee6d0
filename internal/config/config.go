// Package config loads the client-wide settings (default registry,
// per-host TLS overrides, mirrors) from a YAML file, the way the
// teacher's registry configuration loader does. Of these fields,
// registry.Client consults only ChunkSizeBytes and each host's
// Insecure flag; the others are parsed and carried but not acted on.
package config

import (
	"os"

	"gopkg.in/yaml.v2"

	orerrors "github.com/bibin-skaria/orascore/internal/errors"
)

// HostConfig overrides transport behavior for a single registry host.
type HostConfig struct {
	Insecure  bool     `yaml:"insecure"`
	TLSVerify bool     `yaml:"tls_verify"`
	Mirrors   []string `yaml:"mirrors"`
}

// ClientConfig is the top-level configuration document.
type ClientConfig struct {
	DefaultRegistry string                `yaml:"default_registry"`
	DockerConfig    string                `yaml:"docker_config_path"`
	ChunkSizeBytes  int64                 `yaml:"chunk_size_bytes"`
	Hosts           map[string]HostConfig `yaml:"hosts"`
}

// Default returns the zero-configuration client config: Docker Hub
// as the default registry, no per-host overrides.
func Default() ClientConfig {
	return ClientConfig{DefaultRegistry: "docker.io"}
}

// Load reads and parses a ClientConfig from path.
func Load(path string) (ClientConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return ClientConfig{}, orerrors.Wrap(err, orerrors.FileNotFound, "Load", "%s", path)
	}
	var cfg ClientConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return ClientConfig{}, orerrors.Wrap(err, orerrors.SchemaInvalid, "Load", "parsing %s", path)
	}
	return cfg, nil
}

// HostConfigFor returns the configured overrides for host, or the
// zero value if none are configured.
func (c ClientConfig) HostConfigFor(host string) HostConfig {
	return c.Hosts[host]
}

// SchemeFor returns "http" for a host explicitly marked insecure,
// and "https" otherwise.
func (c ClientConfig) SchemeFor(host string) string {
	if c.HostConfigFor(host).Insecure {
		return "http"
	}
	return "https"
}
