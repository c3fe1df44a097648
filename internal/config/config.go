// Copyright (c) 2026 apideploy Authors
// apideploy - service deployment over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

// Package config loads the deployment configuration. Values are resolved in
// the usual viper order: flags, environment (APIDEPLOY_*, optionally seeded
// from a .env file), apideploy.yaml, then the built-in defaults which match
// the historical hardcoded deployment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"invent.kde.org/websites/apideploy/internal/model"
)

const (
	appName    = "apideploy"
	envPrefix  = "apideploy"
	dotEnvFile = ".env"
)

// Transport names accepted by the transport setting.
const (
	TransportNative  = "native"
	TransportOpenSSH = "openssh"
)

// Config is the complete apideploy configuration.
//
// List settings given as a single string, as environment variables are,
// split on commas when the value holds one and on whitespace otherwise:
// APIDEPLOY_BUILD_COMMAND="go build -trimpath" is three arguments, and
// APIDEPLOY_SSH_IDENTITY="/keys/a,/keys/my key" is two paths.
type Config struct {
	Target    TargetConfig   `mapstructure:"target" yaml:"target"`
	Artifact  ArtifactConfig `mapstructure:"artifact" yaml:"artifact"`
	Units     UnitsConfig    `mapstructure:"units" yaml:"units"`
	Build     BuildConfig    `mapstructure:"build" yaml:"build"`
	Docs      DocsConfig     `mapstructure:"docs" yaml:"docs"`
	SSH       SSHConfig      `mapstructure:"ssh" yaml:"ssh"`
	History   HistoryConfig  `mapstructure:"history" yaml:"history"`
	Transport string         `mapstructure:"transport" yaml:"transport"`
	Language  string         `mapstructure:"language" yaml:"language"`
}

type TargetConfig struct {
	User string `mapstructure:"user" yaml:"user"`
	Host string `mapstructure:"host" yaml:"host"`
	// Home, BinPath and SystemdPath are derived from User when empty.
	Home        string `mapstructure:"home" yaml:"home"`
	BinPath     string `mapstructure:"bin_path" yaml:"bin_path"`
	SystemdPath string `mapstructure:"systemd_path" yaml:"systemd_path"`
}

type ArtifactConfig struct {
	Binary  string `mapstructure:"binary" yaml:"binary"`
	Service string `mapstructure:"service" yaml:"service"`
}

type UnitsConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

type BuildConfig struct {
	// Command is run with "-o <binary>" appended.
	Command []string `mapstructure:"command" yaml:"command"`
}

type DocsConfig struct {
	Enabled bool     `mapstructure:"enabled" yaml:"enabled"`
	Command []string `mapstructure:"command" yaml:"command"`
	Dir     string   `mapstructure:"dir" yaml:"dir"`
}

type SSHConfig struct {
	Port           int           `mapstructure:"port" yaml:"port"`
	Identity       []string      `mapstructure:"identity" yaml:"identity"`
	KnownHosts     string        `mapstructure:"known_hosts" yaml:"known_hosts"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	UseAgent       bool          `mapstructure:"use_agent" yaml:"use_agent"`
	UseKeyring     bool          `mapstructure:"use_keyring" yaml:"use_keyring"`
}

type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Type    string `mapstructure:"type" yaml:"type"`
	DSN     string `mapstructure:"dsn" yaml:"dsn"`
}

// Defaults returns the built-in configuration as flat viper keys.
func Defaults() map[string]any {
	return map[string]any{
		"target.user":         "api-projects-kde-org",
		"target.host":         "drax.kde.org",
		"target.home":         "",
		"target.bin_path":     "",
		"target.systemd_path": "",
		"artifact.binary":     "api-projects-kde-org.git",
		"artifact.service":    "api-projects-kde-org",
		"units.dir":           "systemd",
		"build.command":       []string{"go", "build", "-v"},
		"docs.enabled":        true,
		"docs.command":        []string{"rake", "doc"},
		"docs.dir":            "doc",
		"ssh.port":            22,
		"ssh.identity":        []string{"~/.ssh/id_ed25519", "~/.ssh/id_rsa"},
		"ssh.known_hosts":     "~/.ssh/known_hosts",
		"ssh.connect_timeout": 10 * time.Second,
		"ssh.use_agent":       true,
		"ssh.use_keyring":     true,
		"history.enabled":     false,
		"history.type":        "sqlite",
		"history.dsn":         "./apideploy-history.db",
		"transport":           TransportNative,
		"language":            "en",
	}
}

// GetConfigPath returns the full path for the configuration file.
func GetConfigPath(system bool) (string, error) {
	var configDir string
	if system {
		switch runtime.GOOS {
		case "windows":
			configDir = filepath.Join(os.Getenv("ProgramData"), appName)
		default:
			configDir = "/etc/" + appName
		}
	} else {
		dir, err := os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("could not get user config directory: %w", err)
		}
		configDir = filepath.Join(dir, appName)
	}
	return filepath.Join(configDir, appName+".yaml"), nil
}

// LoadConfig resolves configuration into a T. defaults seeds the lowest
// precedence layer; configFile, when non-nil, replaces the config file search.
// A missing config file is not an error.
func LoadConfig[T any](cmd *cobra.Command, defaults map[string]any, configFile *string) (T, error) {
	var c T
	v := viper.New()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigName(appName)
	v.SetConfigType("yaml")
	if configFile != nil {
		v.SetConfigFile(*configFile)
	}
	if userConfigPath, err := GetConfigPath(false); err == nil {
		v.AddConfigPath(filepath.Dir(userConfigPath))
	}
	if systemConfigPath, err := GetConfigPath(true); err == nil {
		v.AddConfigPath(filepath.Dir(systemConfigPath))
	}
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return c, err
		}
	}

	if err := loadDotEnv(dotEnvFile); err != nil {
		return c, err
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cmd != nil {
		if err := v.BindPFlags(cmd.Flags()); err != nil {
			return c, err
		}
	}

	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.DecodeHookFuncType(splitListHook),
	))
	if err := v.Unmarshal(&c, hook); err != nil {
		return c, err
	}
	return c, nil
}

// splitListHook decodes a string, as set through the environment, into a
// list. Values holding a comma are split on commas so elements may contain
// spaces; anything else is split on whitespace.
func splitListHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to.Kind() != reflect.Slice || to.Elem().Kind() != reflect.String {
		return data, nil
	}
	s := data.(string)
	if !strings.Contains(s, ",") {
		return strings.Fields(s), nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out, nil
}

// loadDotEnv exports the variables of a .env file that are not already set.
func loadDotEnv(name string) error {
	if _, err := os.Stat(name); err != nil {
		return nil
	}
	if err := godotenv.Load(name); err != nil {
		return fmt.Errorf("could not load %s: %w", name, err)
	}
	return nil
}

// WriteConfigFile marshals c to YAML at path, creating parent directories.
func WriteConfigFile[T any](c *T, path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	configDir := filepath.Dir(path)
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("could not create config directory %s: %w", configDir, err)
	}
	return os.WriteFile(path, data, 0o600)
}

// Validate reports settings that would make a deployment impossible.
func (c Config) Validate() error {
	var errs []error
	if c.Target.User == "" {
		errs = append(errs, errors.New("target.user must not be empty"))
	}
	if c.Target.Host == "" {
		errs = append(errs, errors.New("target.host must not be empty"))
	}
	if c.Artifact.Binary == "" {
		errs = append(errs, errors.New("artifact.binary must not be empty"))
	}
	if c.Artifact.Service == "" {
		errs = append(errs, errors.New("artifact.service must not be empty"))
	}
	if len(c.Build.Command) == 0 {
		errs = append(errs, errors.New("build.command must not be empty"))
	}
	if c.Docs.Enabled && len(c.Docs.Command) == 0 {
		errs = append(errs, errors.New("docs.command must not be empty when docs are enabled"))
	}
	switch c.Transport {
	case TransportNative, TransportOpenSSH:
	default:
		errs = append(errs, fmt.Errorf("unknown transport %q (want %q or %q)", c.Transport, TransportNative, TransportOpenSSH))
	}
	return errors.Join(errs...)
}

// DeploymentTarget returns the remote target with derived paths filled in.
func (c Config) DeploymentTarget() model.DeploymentTarget {
	t := model.DeploymentTarget{
		User:        c.Target.User,
		Host:        c.Target.Host,
		Home:        c.Target.Home,
		BinPath:     c.Target.BinPath,
		SystemdPath: c.Target.SystemdPath,
	}
	if t.Home == "" {
		t.Home = path.Join("/home", t.User)
	}
	if t.BinPath == "" {
		t.BinPath = path.Join(t.Home, "bin") + "/"
	}
	if t.SystemdPath == "" {
		t.SystemdPath = path.Join(t.Home, ".config/systemd/user")
	}
	return t
}

// ArtifactSpec returns the artifact to build and deploy.
func (c Config) ArtifactSpec() model.Artifact {
	return model.Artifact{Binary: c.Artifact.Binary, Service: c.Artifact.Service}
}

// UnitFiles returns the local unit files for the configured service.
func (c Config) UnitFiles() model.UnitFiles {
	return model.UnitFilesFor(c.Units.Dir, c.Artifact.Service)
}

// ExpandHome replaces a leading "~/" with the current user's home directory.
func ExpandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
