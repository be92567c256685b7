package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zberg/go-rabbitair/pkg/rabbitair"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), configFile)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func noneChanged(string) bool { return false }

func TestConfigDir_XDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	dir, err := configDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/tmp/xdg", appName), dir)

	path, err := defaultConfigPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/tmp/xdg", appName, configFile), path)
}

func TestConfigDir_Home(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("HOME", "/tmp/home")
	dir, err := configDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/tmp/home", ".config", appName), dir)
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
host: 192.168.1.40
token: 0123456789abcdef0123456789abcdef
port: 9010
timeout: 3s
retries: 0
`)
	cfg, err := loadConfig(path, true)
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.40", cfg.Host)
	assert.Equal(t, "0123456789abcdef0123456789abcdef", cfg.Token)
	assert.Equal(t, 9010, cfg.Port)
	assert.Equal(t, 3*time.Second, cfg.Timeout)
	require.NotNil(t, cfg.Retries)
	assert.Equal(t, 0, *cfg.Retries)
}

func TestLoadConfig_Missing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.yaml")

	cfg, err := loadConfig(path, false)
	require.NoError(t, err)
	assert.Empty(t, cfg.Host)
	assert.Nil(t, cfg.Retries)

	_, err = loadConfig(path, true)
	assert.Error(t, err)
}

func TestLoadConfig_Invalid(t *testing.T) {
	path := writeConfig(t, "host: [unterminated\n")
	_, err := loadConfig(path, true)
	assert.Error(t, err)
}

func TestResolve_FileOnly(t *testing.T) {
	t.Setenv(tokenEnv, "")
	retries := 4
	file := &fileConfig{Host: "purifier.local", Token: "aa", Port: 9010, Retries: &retries}

	s, err := resolve(file, &globalFlags{}, noneChanged)
	require.NoError(t, err)
	assert.Equal(t, "purifier.local", s.host)
	assert.Equal(t, "aa", s.token)
	assert.Equal(t, 9010, s.port)
	assert.Equal(t, time.Duration(0), s.timeout)
	assert.Equal(t, 4, s.retries)
}

func TestResolve_FlagsOverride(t *testing.T) {
	t.Setenv(tokenEnv, "from-env")
	file := &fileConfig{Host: "purifier.local", Token: "from-file", Port: 9010}
	f := &globalFlags{host: "10.0.0.2", token: "from-flag", port: 9009, timeout: time.Second, retries: 1}

	s, err := resolve(file, f, func(name string) bool { return name == "host" || name == "retries" })
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.2", s.host)
	assert.Equal(t, "from-env", s.token)
	assert.Equal(t, 9010, s.port)
	assert.Equal(t, 1, s.retries)

	s, err = resolve(file, f, func(string) bool { return true })
	require.NoError(t, err)
	assert.Equal(t, "from-flag", s.token)
	assert.Equal(t, 9009, s.port)
	assert.Equal(t, time.Second, s.timeout)
}

func TestResolve_Missing(t *testing.T) {
	t.Setenv(tokenEnv, "")

	_, err := resolve(&fileConfig{Token: "aa"}, &globalFlags{}, noneChanged)
	assert.ErrorContains(t, err, "host")

	_, err = resolve(&fileConfig{Host: "purifier.local"}, &globalFlags{}, noneChanged)
	assert.ErrorContains(t, err, "token")

	s, err := resolve(&fileConfig{}, &globalFlags{}, noneChanged)
	assert.Nil(t, s)
	assert.Error(t, err)
}

func TestResolve_ProtocolAndTCP(t *testing.T) {
	t.Setenv(tokenEnv, "")
	path := writeConfig(t, `
host: purifier.local
token: aa
protocol: sealed
tcp: true
`)
	file, err := loadConfig(path, true)
	require.NoError(t, err)

	s, err := resolve(file, &globalFlags{}, noneChanged)
	require.NoError(t, err)
	assert.Equal(t, rabbitair.ProtocolSealed, s.protocol)
	assert.True(t, s.tcp)

	f := &globalFlags{protocol: "firmware", tcp: false}
	s, err = resolve(file, f, func(name string) bool { return name == "protocol" || name == "tcp" })
	require.NoError(t, err)
	assert.Equal(t, rabbitair.ProtocolFirmware, s.protocol)
	assert.False(t, s.tcp)

	f.protocol = "v9"
	_, err = resolve(file, f, func(name string) bool { return name == "protocol" })
	assert.ErrorIs(t, err, rabbitair.ErrValidation)
}
