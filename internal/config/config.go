// Package config loads and persists the single JSON configuration file
// holding this node's stable identity: a UUID and the self-signed TLS
// certificate/key pair derived from it.
package config

import (
	"encoding/base64"
	"encoding/json"
	"os"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/kdeconnect-go/kdeconnect/internal/identity"
)

// Config is the stable per-device identity persisted across restarts.
type Config struct {
	UUID    string
	TLSKey  []byte
	TLSCert []byte
}

// encoded is the on-disk JSON shape: base64-encoded DER for the key and
// certificate, matching original_source/kdeconnect/src/config.rs.
type encoded struct {
	UUID    string `json:"uuid"`
	TLSKey  string `json:"tls_key"`
	TLSCert string `json:"tls_cert"`
}

// InitOrLoad loads the config at path, or creates and saves a fresh one
// if it does not exist.
func InitOrLoad(path string) (*Config, error) {
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "stat config %s", path)
	}

	c, err := Init()
	if err != nil {
		return nil, err
	}
	if err := c.Save(path); err != nil {
		return nil, err
	}
	return c, nil
}

// Load reads and decodes the config file at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}

	var e encoded
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}

	key, err := base64.StdEncoding.DecodeString(e.TLSKey)
	if err != nil {
		return nil, errors.Wrap(err, "decode tls key")
	}
	cert, err := base64.StdEncoding.DecodeString(e.TLSCert)
	if err != nil {
		return nil, errors.Wrap(err, "decode tls cert")
	}

	return &Config{UUID: e.UUID, TLSKey: key, TLSCert: cert}, nil
}

// Init generates a fresh UUID and a self-signed certificate keyed by it.
func Init() (*Config, error) {
	id := uuid.NewString()

	cert, key, err := identity.GenerateCert(id)
	if err != nil {
		return nil, errors.Wrap(err, "generate certificate")
	}

	return &Config{UUID: id, TLSKey: key, TLSCert: cert}, nil
}

// Save writes the config to path as JSON.
func (c *Config) Save(path string) error {
	e := encoded{
		UUID:    c.UUID,
		TLSKey:  base64.StdEncoding.EncodeToString(c.TLSKey),
		TLSCert: base64.StdEncoding.EncodeToString(c.TLSCert),
	}

	raw, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "encode config")
	}

	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return errors.Wrapf(err, "write config %s", path)
	}
	return nil
}
