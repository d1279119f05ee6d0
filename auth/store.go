package auth

import (
	"bytes"
	"encoding/base64"
	"os"
	"path/filepath"

	"github.com/docker/cli/cli/config/configfile"
	credtypes "github.com/docker/cli/cli/config/types"
	dcredentials "github.com/docker/docker-credential-helpers/client"
	"github.com/mitchellh/go-homedir"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	orerrors "github.com/bibin-skaria/orascore/internal/errors"
)

// log is the package-level structured logger auth's credential
// resolution paths write to, the same pattern the registry package
// uses for its *logrus.Entry logger.
var log = logrus.WithField("component", "auth")

// localhostAliases are treated as the same credential-store key,
// following oras-py's auth/base.py normalization of "localhost" and
// "127.0.0.1" registries (common for test registries run on-box).
var localhostAliases = map[string]string{
	"127.0.0.1": "localhost",
}

// Store resolves credentials for a host by checking, in order: an
// in-memory override set by the caller, the docker config.json's
// plaintext "auths" entries, and finally any configured credsStore
// or per-host credHelpers helper program.
type Store struct {
	configPath string
	overrides  map[string]Credential
	group      singleflight.Group
}

// NewStore loads (or lazily creates an empty view over) the Docker
// config file at the conventional ~/.docker/config.json location, or
// at configPath if non-empty.
func NewStore(configPath string) (*Store, error) {
	if configPath == "" {
		home, err := homedir.Dir()
		if err != nil {
			return nil, orerrors.Wrap(err, orerrors.FileNotFound, "NewStore", "resolving home directory")
		}
		configPath = filepath.Join(home, ".docker", "config.json")
	}
	return &Store{configPath: configPath, overrides: map[string]Credential{}}, nil
}

// SetCredential installs an in-memory credential for host, taking
// priority over anything found in the Docker config file. This is
// how ORAS_USER/ORAS_PASS-style environment overrides are wired in.
func (s *Store) SetCredential(host string, cred Credential) {
	s.overrides[normalizeHost(host)] = cred
}

// Get resolves the credential for host, deduplicating concurrent
// lookups of the same host via singleflight so a credential helper
// subprocess isn't spawned twice for one burst of parallel requests.
func (s *Store) Get(host string) (Credential, error) {
	host = normalizeHost(host)
	v, err, _ := s.group.Do(host, func() (interface{}, error) {
		return s.resolve(host)
	})
	if err != nil {
		return Credential{}, err
	}
	return v.(Credential), nil
}

func (s *Store) resolve(host string) (Credential, error) {
	if cred, ok := s.overrides[host]; ok {
		return cred, nil
	}

	cfg, err := s.loadConfigFile()
	if err != nil {
		return Credential{}, err
	}
	if cfg == nil {
		return Credential{}, nil
	}

	if entry, ok := cfg.AuthConfigs[host]; ok && (entry.Username != "" || entry.Password != "" || entry.IdentityToken != "") {
		return fromAuthConfig(entry), nil
	}

	if helper := cfg.CredentialHelpers[host]; helper != "" {
		return s.fromHelper(helper, host)
	}
	if cfg.CredentialsStore != "" {
		return s.fromHelper(cfg.CredentialsStore, host)
	}
	return Credential{}, nil
}

func (s *Store) loadConfigFile() (*configfile.ConfigFile, error) {
	f, err := os.Open(s.configPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, orerrors.Wrap(err, orerrors.FileNotFound, "loadConfigFile", "%s", s.configPath)
	}
	defer f.Close()

	cfg := configfile.New(s.configPath)
	if err := cfg.LoadFromReader(f); err != nil {
		return nil, orerrors.Wrap(err, orerrors.SchemaInvalid, "loadConfigFile", "parsing %s", s.configPath)
	}
	return cfg, nil
}

// fromHelper spawns docker-credential-<helper> get <host>, the same
// subprocess protocol oras-py's _get_auth_from_creds_store implements
// by hand; docker-credential-helpers/client gives us a tested client.
// A missing binary, non-zero exit, or malformed response is a "not
// found" result, not a failure: the caller falls back to anonymous
// access rather than aborting the whole push/pull.
func (s *Store) fromHelper(helper, host string) (Credential, error) {
	program := dcredentials.NewShellProgramFunc("docker-credential-" + helper)
	creds, err := dcredentials.Get(program, host)
	if err != nil {
		log.WithFields(logrus.Fields{"helper": helper, "host": host}).WithError(err).Warn("credential helper lookup failed, falling back to anonymous access")
		return Credential{}, nil
	}
	return Credential{Username: creds.Username, Password: creds.Secret}, nil
}

func fromAuthConfig(a credtypes.AuthConfig) Credential {
	if a.IdentityToken != "" {
		return Credential{IdentityToken: a.IdentityToken}
	}
	if a.Username != "" || a.Password != "" {
		return Credential{Username: a.Username, Password: a.Password}
	}
	if a.Auth != "" {
		return decodeBasicAuth(a.Auth)
	}
	return Credential{}
}

func normalizeHost(host string) string {
	if alias, ok := localhostAliases[host]; ok {
		return alias
	}
	return host
}

// decodeBasicAuth decodes a config.json "auth" field, base64("user:pass"),
// the same encoding the Basic scheme sends on the wire.
func decodeBasicAuth(encoded string) Credential {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return Credential{}
	}
	idx := bytes.IndexByte(raw, ':')
	if idx < 0 {
		return Credential{}
	}
	return Credential{Username: string(raw[:idx]), Password: string(raw[idx+1:])}
}
