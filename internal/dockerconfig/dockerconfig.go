// Package dockerconfig stores registry logins in a docker config.json so both the
// crane binary and the in-process copier read the same credentials.
package dockerconfig

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/docker/cli/cli/config"
	"github.com/docker/cli/cli/config/configfile"
	"github.com/docker/cli/cli/config/types"
	dockercred "github.com/docker/docker-credential-helpers/credentials"
)

// DockerHubServer is the key docker uses for Docker Hub credentials.
const DockerHubServer = "https://index.docker.io/v1/"

// LoadConfigFile loads a Docker config from path or falls back to the default config.
// Logins for an explicit path always live in the file itself; no credential
// helper is auto-detected.
func LoadConfigFile(path string, stderr io.Writer) (*configfile.ConfigFile, error) {
	if path == "" {
		cfg := config.LoadDefaultConfigFile(stderr)
		if cfg == nil {
			return nil, errors.New("unable to load docker config")
		}
		return cfg, nil
	}
	cfg := configfile.New(path)
	if data, err := os.ReadFile(path); err == nil {
		if len(data) > 0 {
			if err := cfg.LoadFromReader(bytes.NewReader(data)); err != nil {
				return nil, err
			}
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}
	return cfg, nil
}

// NormalizeServer maps Docker Hub aliases to DockerHubServer and strips URL
// schemes from other registries.
func NormalizeServer(server string) string {
	trimmed := strings.TrimSpace(server)
	switch strings.ToLower(trimmed) {
	case "", "docker.io", "index.docker.io", "registry-1.docker.io", DockerHubServer:
		return DockerHubServer
	}
	trimmed = strings.TrimPrefix(trimmed, "https://")
	trimmed = strings.TrimPrefix(trimmed, "http://")
	return strings.TrimRight(trimmed, "/")
}

// StoreLogin saves username/password for server in the config at path.
func StoreLogin(path, server, username, password string) error {
	cfg, err := LoadConfigFile(path, io.Discard)
	if err != nil {
		return err
	}
	server = NormalizeServer(server)
	if err := EnsureConfigDir(cfg.Filename); err != nil {
		return err
	}
	auth := types.AuthConfig{ServerAddress: server, Username: username, Password: password}
	if usesFileStore(cfg, server) {
		cfg.AuthConfigs[server] = auth
	} else if err := cfg.GetCredentialsStore(server).Store(auth); err != nil {
		return err
	}
	return cfg.Save()
}

// usesFileStore reports whether logins for server live in config.json itself.
func usesFileStore(cfg *configfile.ConfigFile, server string) bool {
	if cfg.AuthConfigs == nil {
		cfg.AuthConfigs = map[string]types.AuthConfig{}
	}
	if cfg.CredentialsStore != "" {
		return false
	}
	_, helper := cfg.CredentialHelpers[server]
	return !helper
}

// EraseLogin removes the credentials for server. It reports false when none were stored.
func EraseLogin(path, server string) (bool, error) {
	cfg, err := LoadConfigFile(path, io.Discard)
	if err != nil {
		return false, err
	}
	server = NormalizeServer(server)
	if usesFileStore(cfg, server) {
		if _, ok := cfg.AuthConfigs[server]; !ok {
			return false, nil
		}
		delete(cfg.AuthConfigs, server)
		return true, cfg.Save()
	}
	if err := cfg.GetCredentialsStore(server).Erase(server); err != nil {
		if dockercred.IsErrCredentialsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, cfg.Save()
}

// Lookup returns the stored login for server.
func Lookup(path, server string) (types.AuthConfig, error) {
	cfg, err := LoadConfigFile(path, io.Discard)
	if err != nil {
		return types.AuthConfig{}, err
	}
	return cfg.GetAuthConfig(NormalizeServer(server))
}

// Reset removes every stored login by deleting the config at path. A missing
// file is not an error.
func Reset(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// EnsureConfigDir ensures the directory for the docker config path exists.
func EnsureConfigDir(path string) error {
	if path == "" {
		return nil
	}
	return os.MkdirAll(filepath.Dir(path), 0o700)
}

// ApplyAuthfileEnv points docker-compatible tools at the directory containing path.
func ApplyAuthfileEnv(path string) error {
	if path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "" {
		dir = "."
	}
	return os.Setenv(config.EnvOverrideConfigDir, dir)
}
