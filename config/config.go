// Package config loads the TOML configuration file: the destinations a
// backup can target, the default one, the log level and transfer options.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pelletier/go-toml"
	"github.com/sirupsen/logrus"

	"github.com/franksops/gobak/logging"
	"github.com/franksops/gobak/provider"
)

// Server types as written in the configuration file.
const (
	TypeS3  = "S3"
	TypeSSH = "SSH"
)

const defaultSSHPort = 22

var ErrUnknownDestination = errors.New("unknown destination")

type fileConfig struct {
	Default  string         `toml:"default"`
	Log      logSection     `toml:"log"`
	Transfer transferConfig `toml:"transfer"`
	Servers  []server       `toml:"servers"`
}

type logSection struct {
	Level string `toml:"level"`
}

type transferConfig struct {
	ContinueOnError *bool  `toml:"continue_on_error"`
	Journal         string `toml:"journal"`
}

// server holds the fields of both server types; Type selects which apply.
type server struct {
	Type        string `toml:"type"`
	Name        string `toml:"name"`
	DefaultPath string `toml:"default_path"`

	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Bucket    string `toml:"bucket"`
	Region    string `toml:"region"`
	Endpoint  string `toml:"endpoint"`

	Username   string `toml:"username"`
	Password   string `toml:"password"`
	Server     string `toml:"server"`
	Port       int    `toml:"port"`
	KnownHosts string `toml:"known_hosts"`
}

// Config is a loaded and validated configuration.
type Config struct {
	// Path is the absolute path of the file the configuration was read from.
	Path            string
	Default         string
	LogLevel        logrus.Level
	ContinueOnError bool
	// Journal is the bbolt journal path, empty when journaling is disabled.
	// A relative path is resolved against the directory of the config file.
	Journal      string
	Destinations []provider.Destination
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve config path: %w", err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("cannot read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", abs, err)
	}
	cfg.Path = abs
	if cfg.Journal != "" && !filepath.IsAbs(cfg.Journal) {
		cfg.Journal = filepath.Join(filepath.Dir(abs), cfg.Journal)
	}
	return cfg, nil
}

// Parse decodes and validates TOML configuration data.
func Parse(data []byte) (*Config, error) {
	var raw fileConfig
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("cannot parse TOML: %w", err)
	}

	cfg := &Config{
		Default:         raw.Default,
		LogLevel:        logrus.InfoLevel,
		ContinueOnError: true,
		Journal:         raw.Transfer.Journal,
	}
	if raw.Transfer.ContinueOnError != nil {
		cfg.ContinueOnError = *raw.Transfer.ContinueOnError
	}

	var errs *multierror.Error
	if raw.Log.Level != "" {
		level, err := logging.ParseLevel(raw.Log.Level)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("log.level: %w", err))
		}
		cfg.LogLevel = level
	}

	seen := make(map[string]bool)
	for i, s := range raw.Servers {
		dest, err := s.destination()
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("servers[%d]: %w", i, err))
			continue
		}
		if seen[s.Name] {
			errs = multierror.Append(errs, fmt.Errorf("servers[%d]: duplicate name %q", i, s.Name))
			continue
		}
		seen[s.Name] = true
		cfg.Destinations = append(cfg.Destinations, dest)
	}

	if cfg.Default != "" && !seen[cfg.Default] {
		errs = multierror.Append(errs, fmt.Errorf("default: %w %q", ErrUnknownDestination, cfg.Default))
	}

	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (s server) destination() (provider.Destination, error) {
	if strings.TrimSpace(s.Name) == "" {
		return nil, errors.New("name is required")
	}

	var dest provider.Destination
	switch s.Type {
	case TypeS3:
		dest = provider.ObjectStorage{
			Name:        s.Name,
			AccessKey:   s.AccessKey,
			SecretKey:   s.SecretKey,
			Bucket:      s.Bucket,
			Region:      s.Region,
			Endpoint:    s.Endpoint,
			DefaultPath: s.DefaultPath,
		}
	case TypeSSH:
		port := s.Port
		if port == 0 {
			port = defaultSSHPort
		}
		dest = provider.RemoteFilesystem{
			Name:        s.Name,
			Username:    s.Username,
			Password:    s.Password,
			Host:        s.Server,
			Port:        port,
			KnownHosts:  s.KnownHosts,
			DefaultPath: s.DefaultPath,
		}
	default:
		return nil, fmt.Errorf("%s: unknown type %q (want %s or %s)", s.Name, s.Type, TypeS3, TypeSSH)
	}

	if err := dest.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", s.Name, err)
	}
	return dest, nil
}

// Lookup returns the destination called name, or the default destination
// when name is empty.
func (c *Config) Lookup(name string) (provider.Destination, error) {
	if name == "" {
		name = c.Default
	}
	if name == "" {
		return nil, fmt.Errorf("%w: no destination given and no default configured", ErrUnknownDestination)
	}
	for _, d := range c.Destinations {
		if d.DestinationName() == name {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownDestination, name)
}
