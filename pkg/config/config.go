// Package config provides configuration management for wheelhouse.
// It handles loading, validating and saving the store, remote host, HTTP
// server and logging settings. Values come from a YAML file and can be
// overridden through the environment (optionally loaded from a .env file).
package config

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/glorpus-work/wheelhouse/pkg/errutils"
	"github.com/glorpus-work/wheelhouse/pkg/fsutil"
)

// Store transports.
const (
	TransportLocal  = "local"
	TransportRemote = "remote"
)

// IndexToolBuiltin selects the in-process simple index generator.
const IndexToolBuiltin = "builtin"

// Config represents the application configuration.
type Config struct {
	Store    StoreConfig  `yaml:"store"`
	Remote   RemoteConfig `yaml:"remote"`
	Server   ServerConfig `yaml:"server"`
	Client   ClientConfig `yaml:"client"`
	Settings Settings     `yaml:"settings"`
}

// StoreConfig describes where artifacts live and how the index is rebuilt.
type StoreConfig struct {
	// Transport is "local" or "remote".
	Transport string `yaml:"transport"`
	// Root is the store directory on the machine that holds the artifacts.
	Root string `yaml:"root"`
	// SimpleDir is the index directory, relative to Root unless absolute.
	SimpleDir string `yaml:"simple_dir"`
	// IndexTool is the command run as `<tool> <root>`, or "builtin". It is
	// split on whitespace into a program and arguments, so none of them may
	// contain spaces. No shell expansion happens except a leading "~/" on
	// the program.
	IndexTool string `yaml:"index_tool"`
	// CommandTimeout bounds every transport call.
	CommandTimeout time.Duration `yaml:"command_timeout"`
	// StrictMetadata rejects uploads whose metadata cannot be read.
	StrictMetadata bool   `yaml:"strict_metadata"`
	HooksDir       string `yaml:"hooks_dir,omitempty"`
}

// RemoteConfig holds the SSH settings of the remote transport.
type RemoteConfig struct {
	Host           string        `yaml:"host,omitempty"`
	Port           int           `yaml:"port"`
	User           string        `yaml:"user,omitempty"`
	KeyFile        string        `yaml:"key_file,omitempty"`
	Password       string        `yaml:"password,omitempty"`
	UseAgent       bool          `yaml:"use_agent"`
	KnownHostsFile string        `yaml:"known_hosts_file,omitempty"`
	InsecureHost   bool          `yaml:"insecure_ignore_host_key"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Listen          string        `yaml:"listen"`
	UsersFile       string        `yaml:"users_file,omitempty"`
	CORSOrigins     []string      `yaml:"cors_origins,omitempty"`
	MaxUploadSize   int64         `yaml:"max_upload_size"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ClientConfig points the remote commands at a running API server.
type ClientConfig struct {
	URL      string        `yaml:"url,omitempty"`
	Username string        `yaml:"username,omitempty"`
	Password string        `yaml:"password,omitempty"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Settings represents general application settings.
type Settings struct {
	LogFormat string `yaml:"log_format"` // text, json
	LogLevel  string `yaml:"log_level"`  // debug, info, warn, error
}

// Default configuration values.
const (
	DefaultStoreRoot       = "/var/lib/wheelhouse/packages"
	DefaultSimpleDir       = "simple"
	DefaultIndexTool       = "dir2pi"
	DefaultCommandTimeout  = 60 * time.Second
	DefaultSSHPort         = 22
	DefaultConnectTimeout  = 10 * time.Second
	DefaultListen          = ":8000"
	DefaultMaxUploadSize   = 512 << 20
	DefaultShutdownTimeout = 10 * time.Second
	DefaultClientTimeout   = 5 * time.Minute

	// YAMLIndent is the number of spaces to use for YAML indentation.
	YAMLIndent = 2
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	usersFile, err := fsutil.GetDefaultUsersPath()
	if err != nil {
		usersFile = "users.yaml"
	}
	return &Config{
		Store: StoreConfig{
			Transport:      TransportLocal,
			Root:           DefaultStoreRoot,
			SimpleDir:      DefaultSimpleDir,
			IndexTool:      DefaultIndexTool,
			CommandTimeout: DefaultCommandTimeout,
		},
		Remote: RemoteConfig{
			Port:           DefaultSSHPort,
			ConnectTimeout: DefaultConnectTimeout,
		},
		Server: ServerConfig{
			Listen:          DefaultListen,
			UsersFile:       usersFile,
			CORSOrigins:     []string{"*"},
			MaxUploadSize:   DefaultMaxUploadSize,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Client: ClientConfig{
			Timeout: DefaultClientTimeout,
		},
		Settings: Settings{
			LogFormat: "text",
			LogLevel:  "info",
		},
	}
}

// LoadConfig loads configuration from a file. A missing file yields the
// default configuration.
func LoadConfig(path string) (*Config, error) {
	return Load(path, nil)
}

// Load reads the file at path, overlays the environment read through lookup
// (nil skips the overlay), fills defaults and validates the result.
func Load(path string, lookup LookupFunc) (*Config, error) {
	if path == "" {
		return nil, errutils.ErrEmptyConfigPath
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, errutils.Wrap(errutils.ErrInvalidConfigPath, err.Error())
	}

	file, err := os.Open(absPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, errutils.Wrapf(err, "failed to open config file: %s", path)
		}
		return finish(DefaultConfig(), lookup)
	}
	defer func() { _ = file.Close() }()

	cfg, err := decode(file)
	if err != nil {
		return nil, err
	}
	return finish(cfg, lookup)
}

// LoadConfigFromReader loads configuration from an io.Reader.
func LoadConfigFromReader(reader io.Reader) (*Config, error) {
	cfg, err := decode(reader)
	if err != nil {
		return nil, err
	}
	return finish(cfg, nil)
}

func decode(reader io.Reader) (*Config, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, errutils.Wrap(err, "failed to read config data")
	}
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, errutils.Wrap(errutils.ErrConfigParse, err.Error())
	}
	return &config, nil
}

func finish(cfg *Config, lookup LookupFunc) (*Config, error) {
	if lookup != nil {
		if err := cfg.ApplyEnv(lookup); err != nil {
			return nil, errutils.Wrap(errutils.ErrConfigValidation, err.Error())
		}
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, errutils.Wrap(errutils.ErrConfigValidation, err.Error())
	}
	return cfg, nil
}

// SaveConfig saves configuration to a file via temp file and rename.
func (c *Config) SaveConfig(path string) error {
	if path == "" {
		return errutils.ErrEmptyConfigPath
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return errutils.Wrap(errutils.ErrInvalidConfigPath, err.Error())
	}

	if err := fsutil.EnsureFileDir(absPath); err != nil {
		return errutils.Wrap(errutils.ErrConfigDirectory, err.Error())
	}

	data, err := c.ToYAML()
	if err != nil {
		return err
	}

	// The file may hold passwords.
	if err := fsutil.AtomicWriteFile(absPath, data, fsutil.FileModeSecure); err != nil {
		return errutils.Wrap(errutils.ErrConfigFileCreate, err.Error())
	}
	return nil
}

// ToYAML converts the config to YAML bytes.
func (c *Config) ToYAML() ([]byte, error) {
	var b strings.Builder
	encoder := yaml.NewEncoder(&b)
	encoder.SetIndent(YAMLIndent)
	if err := encoder.Encode(c); err != nil {
		return nil, errutils.Wrap(errutils.ErrConfigEncode, err.Error())
	}
	if err := encoder.Close(); err != nil {
		return nil, errutils.Wrap(errutils.ErrConfigEncode, err.Error())
	}
	return []byte(b.String()), nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c == nil {
		return errutils.ErrConfigValidation
	}
	if err := validateStore(c.Store); err != nil {
		return err
	}
	if c.Store.Transport == TransportRemote {
		if err := validateRemote(c.Remote, c.Store); err != nil {
			return err
		}
	}
	if c.Server.ShutdownTimeout < 0 || c.Remote.ConnectTimeout < 0 || c.Client.Timeout < 0 {
		return errutils.ErrTimeoutNegative
	}
	return validateSettings(c.Settings)
}

func validateStore(s StoreConfig) error {
	if strings.TrimSpace(s.Root) == "" {
		return errutils.ErrStoreRootEmpty
	}
	switch s.Transport {
	case TransportLocal, TransportRemote:
	default:
		return errutils.ErrUnknownTransportWithName(s.Transport)
	}
	if s.CommandTimeout < 0 {
		return errutils.ErrTimeoutNegative
	}
	return nil
}

func validateRemote(r RemoteConfig, s StoreConfig) error {
	if r.Host == "" {
		return errutils.ErrRemoteHostEmpty
	}
	if r.User == "" {
		return errutils.ErrRemoteUserEmpty
	}
	if r.KeyFile == "" && r.Password == "" && !r.UseAgent {
		return errutils.ErrRemoteNoAuth
	}
	if s.IndexTool == IndexToolBuiltin {
		return errutils.ErrBuiltinIndexRemote
	}
	// Remote paths are shell-quoted, so "~" would never expand.
	if !path.IsAbs(s.Root) {
		return fmt.Errorf("%w: %q", errutils.ErrRemoteRootRelative, s.Root)
	}
	return nil
}

func validateSettings(s Settings) error {
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[s.LogFormat] {
		return errutils.ErrInvalidOutputFormatWithDetails(s.LogFormat)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(s.LogLevel)] {
		return errutils.ErrInvalidLogLevelWithDetails(s.LogLevel)
	}
	return nil
}

// SimplePath returns the index directory as seen on the store host.
func (c *Config) SimplePath() string {
	if filepath.IsAbs(c.Store.SimpleDir) {
		return c.Store.SimpleDir
	}
	return filepath.Join(c.Store.Root, c.Store.SimpleDir)
}

// applyDefaults fills in missing values with defaults.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()

	if c.Store.Transport == "" {
		c.Store.Transport = defaults.Store.Transport
	}
	if c.Store.Root == "" {
		c.Store.Root = defaults.Store.Root
	}
	if c.Store.SimpleDir == "" {
		c.Store.SimpleDir = defaults.Store.SimpleDir
	}
	if c.Store.IndexTool == "" {
		c.Store.IndexTool = defaults.Store.IndexTool
	}
	if c.Store.CommandTimeout == 0 {
		c.Store.CommandTimeout = defaults.Store.CommandTimeout
	}
	if c.Remote.Port == 0 {
		c.Remote.Port = defaults.Remote.Port
	}
	if c.Remote.ConnectTimeout == 0 {
		c.Remote.ConnectTimeout = defaults.Remote.ConnectTimeout
	}
	if c.Server.Listen == "" {
		c.Server.Listen = defaults.Server.Listen
	}
	if c.Server.UsersFile == "" {
		c.Server.UsersFile = defaults.Server.UsersFile
	}
	if c.Server.CORSOrigins == nil {
		c.Server.CORSOrigins = defaults.Server.CORSOrigins
	}
	if c.Server.MaxUploadSize == 0 {
		c.Server.MaxUploadSize = defaults.Server.MaxUploadSize
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = defaults.Server.ShutdownTimeout
	}
	if c.Client.Timeout == 0 {
		c.Client.Timeout = defaults.Client.Timeout
	}
	if c.Settings.LogFormat == "" {
		c.Settings.LogFormat = defaults.Settings.LogFormat
	}
	if c.Settings.LogLevel == "" {
		c.Settings.LogLevel = defaults.Settings.LogLevel
	}
}
