// Package config reads and writes the YAML configuration shared by all
// sub-commands.
package config

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/zkfleet/zkfleet/common"
	"github.com/zkfleet/zkfleet/ensemble"
	"github.com/zkfleet/zkfleet/remote"
	"gopkg.in/yaml.v2"
)

const (
	CatalogLog  = "log"
	CatalogBolt = "bolt"
)

type Catalog struct {
	Backend string `yaml:"backend"` // log or bolt
	Path    string `yaml:"path"`
}

type Artifact struct {
	Path       string `yaml:"path"`
	RemotePath string `yaml:"remotePath"`
	Base       string `yaml:"base"`
}

type SSH struct {
	Port           int    `yaml:"port"`
	Timeout        int    `yaml:"timeout"`    // In milliseconds
	Retries        int    `yaml:"retries"`
	RetryDelay     int    `yaml:"retryDelay"` // In milliseconds
	KnownHostsFile string `yaml:"knownHostsFile"`
}

type Store struct {
	SessionTimeout int `yaml:"sessionTimeout"` // In milliseconds
	ConnectTimeout int `yaml:"connectTimeout"` // In milliseconds
}

type Readiness struct {
	Interval     int `yaml:"interval"`     // In milliseconds
	Timeout      int `yaml:"timeout"`      // In milliseconds
	MaxAttempts  int `yaml:"maxAttempts"`
	ProbeTimeout int `yaml:"probeTimeout"` // In milliseconds
}

type Config struct {
	Catalog           Catalog         `yaml:"catalog"`
	Artifact          Artifact        `yaml:"artifact"`
	SSH               SSH             `yaml:"ssh"`
	Store             Store           `yaml:"store"`
	Readiness         Readiness       `yaml:"readiness"`
	Commands          remote.Commands `yaml:"commands"`
	RemoteAccessMode  string          `yaml:"remoteAccessMode"`
	AgentCredential   string          `yaml:"agentCredential"`
	OperationTimeout  int             `yaml:"operationTimeout"` // In milliseconds
	ForgetOnUninstall bool            `yaml:"forgetOnUninstall"`
}

// Default returns a configuration that works without a file.
func Default() Config {
	return Config{
		Catalog: Catalog{
			Backend: CatalogLog,
			Path:    "servers/server_list.log",
		},
		Artifact: Artifact{
			Path:       "settings/config.txt",
			RemotePath: remote.DefaultConfigPath,
			Base:       ensemble.DefaultBase,
		},
		SSH: SSH{
			Port:       22,
			Timeout:    10000,
			Retries:    3,
			RetryDelay: 1000,
		},
		Store: Store{
			SessionTimeout: 10000,
			ConnectTimeout: 15000,
		},
		Readiness: Readiness{
			Interval:     2000,
			Timeout:      60000,
			MaxAttempts:  30,
			ProbeTimeout: 2000,
		},
		Commands:         remote.DefaultCommands(),
		RemoteAccessMode: "yes",
		OperationTimeout: 600000,
	}
}

// Load overlays the file at path onto Default. A missing file is not an
// error when path is empty.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	bytes, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(bytes, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: %s: %v", common.ErrConfiguration, path, err)
	}
	return cfg, cfg.Validate()
}

func Write(path string, cfg Config) error {
	bytes, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, bytes, fs.FileMode(0644))
}

func (c Config) Validate() error {
	switch {
	case c.Catalog.Backend != CatalogLog && c.Catalog.Backend != CatalogBolt:
		return fmt.Errorf("%w: unknown catalog backend %q", common.ErrConfiguration, c.Catalog.Backend)
	case c.Catalog.Path == "":
		return fmt.Errorf("%w: catalog path is empty", common.ErrConfiguration)
	case c.Artifact.Path == "" || c.Artifact.RemotePath == "":
		return fmt.Errorf("%w: artifact paths must be set", common.ErrConfiguration)
	case c.SSH.Port <= 0 || c.SSH.Port > 65535:
		return fmt.Errorf("%w: invalid ssh port %d", common.ErrConfiguration, c.SSH.Port)
	case c.SSH.Timeout <= 0 || c.SSH.Retries <= 0 || c.SSH.RetryDelay < 0:
		return fmt.Errorf("%w: ssh timeout and retries must be positive", common.ErrConfiguration)
	case c.Store.SessionTimeout <= 0 || c.Store.ConnectTimeout <= 0:
		return fmt.Errorf("%w: store timeouts must be positive", common.ErrConfiguration)
	case c.Readiness.Interval <= 0 || c.Readiness.ProbeTimeout <= 0:
		return fmt.Errorf("%w: readiness interval and probe timeout must be positive", common.ErrConfiguration)
	case c.Readiness.MaxAttempts < 0 || c.Readiness.Timeout < 0:
		return fmt.Errorf("%w: readiness bounds may not be negative", common.ErrConfiguration)
	case c.Readiness.MaxAttempts == 0 && c.Readiness.Timeout == 0:
		return fmt.Errorf("%w: readiness needs maxAttempts or timeout", common.ErrConfiguration)
	case c.OperationTimeout < 0:
		return fmt.Errorf("%w: operation timeout may not be negative", common.ErrConfiguration)
	}
	return nil
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

func (s SSH) TimeoutDuration() time.Duration    { return ms(s.Timeout) }
func (s SSH) RetryDelayDuration() time.Duration { return ms(s.RetryDelay) }

func (s Store) SessionTimeoutDuration() time.Duration { return ms(s.SessionTimeout) }
func (s Store) ConnectTimeoutDuration() time.Duration { return ms(s.ConnectTimeout) }

func (r Readiness) IntervalDuration() time.Duration     { return ms(r.Interval) }
func (r Readiness) TimeoutDuration() time.Duration      { return ms(r.Timeout) }
func (r Readiness) ProbeTimeoutDuration() time.Duration { return ms(r.ProbeTimeout) }

func (c Config) OperationTimeoutDuration() time.Duration { return ms(c.OperationTimeout) }
