package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zberg/go-rabbitair/pkg/rabbitair"
	"gopkg.in/yaml.v3"
)

const (
	appName    = "rabbitair"
	configFile = "config.yaml"
	tokenEnv   = "RABBITAIR_TOKEN"
)

// fileConfig is the on-disk CLI configuration. Zero values mean "not set".
type fileConfig struct {
	Host     string        `yaml:"host"`
	Token    string        `yaml:"token"`
	Port     int           `yaml:"port,omitempty"`
	Timeout  time.Duration `yaml:"timeout,omitempty"`
	Retries  *int          `yaml:"retries,omitempty"`
	Protocol string        `yaml:"protocol,omitempty"`
	TCP      bool          `yaml:"tcp,omitempty"`
}

// configDir returns $XDG_CONFIG_HOME/rabbitair or $HOME/.config/rabbitair.
func configDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", appName), nil
}

// defaultConfigPath returns the full path to the default configuration file.
func defaultConfigPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFile), nil
}

// loadConfig reads the configuration at path. A missing file is only an
// error when it was named explicitly.
func loadConfig(path string, explicit bool) (*fileConfig, error) {
	cfg := &fileConfig{}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// settings are the resolved connection parameters.
type settings struct {
	host     string
	token    string
	port     int
	timeout  time.Duration
	retries  int
	protocol rabbitair.Protocol
	tcp      bool
	debug    bool
}

// resolve merges the file configuration, the token environment variable and
// the command line flags. Flags win over the environment, which wins over
// the file.
func resolve(file *fileConfig, f *globalFlags, changed func(name string) bool) (*settings, error) {
	s := &settings{
		host:    file.Host,
		token:   file.Token,
		port:    file.Port,
		timeout: file.Timeout,
		retries: -1,
		tcp:     file.TCP,
		debug:   f.debug,
	}
	if file.Retries != nil {
		s.retries = *file.Retries
	}
	if env := os.Getenv(tokenEnv); env != "" {
		s.token = env
	}

	if changed("host") {
		s.host = f.host
	}
	if changed("token") {
		s.token = f.token
	}
	if changed("port") {
		s.port = f.port
	}
	if changed("timeout") {
		s.timeout = f.timeout
	}
	if changed("retries") {
		s.retries = f.retries
	}
	if changed("tcp") {
		s.tcp = f.tcp
	}

	protocol := file.Protocol
	if changed("protocol") {
		protocol = f.protocol
	}
	if protocol != "" {
		p, err := rabbitair.ParseProtocol(protocol)
		if err != nil {
			return nil, err
		}
		s.protocol = p
	}

	if s.host == "" {
		return nil, errors.New("device host required: use --host or set host in the config file")
	}
	if s.token == "" {
		return nil, fmt.Errorf("access token required: use --token, %s or the config file", tokenEnv)
	}
	return s, nil
}
