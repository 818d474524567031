package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/glorpus-work/wheelhouse/pkg/errutils"
)

// LookupFunc reads one environment variable; os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// Environment variables understood by ApplyEnv.
const (
	EnvStoragePath    = "STORAGE_PATH"
	EnvSimpleDir      = "SIMPLE_DIR"
	EnvIndexTool      = "DIR2PI_PATH"
	EnvServerIP       = "SERVER_IP"
	EnvServerUser     = "SERVER_USER"
	EnvServerPort     = "SERVER_PORT"
	EnvTransport      = "WHEELHOUSE_TRANSPORT"
	EnvListen         = "WHEELHOUSE_LISTEN"
	EnvSSHKey         = "WHEELHOUSE_SSH_KEY"
	EnvSSHPassword    = "WHEELHOUSE_SSH_PASSWORD"
	EnvCommandTimeout = "WHEELHOUSE_COMMAND_TIMEOUT"
	EnvLogLevel       = "WHEELHOUSE_LOG_LEVEL"
	EnvClientURL      = "WHEELHOUSE_URL"
	EnvClientUser     = "WHEELHOUSE_USER"
	EnvClientPassword = "WHEELHOUSE_PASSWORD"
)

// LoadDotEnv loads variables from the given .env files (default ".env")
// into the process environment. Missing files are ignored and variables
// already set are never overwritten.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// ApplyEnv overlays environment values on c. Setting SERVER_IP selects the
// remote transport unless WHEELHOUSE_TRANSPORT says otherwise. A numeric or
// duration variable that does not parse is an error.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get(EnvStoragePath); ok {
		c.Store.Root = v
	}
	if v, ok := get(EnvSimpleDir); ok {
		c.Store.SimpleDir = v
	}
	if v, ok := get(EnvIndexTool); ok {
		c.Store.IndexTool = v
	}
	if v, ok := get(EnvServerIP); ok {
		c.Remote.Host = v
		c.Store.Transport = TransportRemote
	}
	if v, ok := get(EnvServerUser); ok {
		c.Remote.User = v
	}
	if v, ok := get(EnvServerPort); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a port number", errutils.ErrValidation, EnvServerPort, v)
		}
		c.Remote.Port = port
	}
	if v, ok := get(EnvTransport); ok {
		c.Store.Transport = v
	}
	if v, ok := get(EnvListen); ok {
		c.Server.Listen = v
	}
	if v, ok := get(EnvSSHKey); ok {
		c.Remote.KeyFile = v
	}
	if v, ok := get(EnvSSHPassword); ok {
		c.Remote.Password = v
	}
	if v, ok := get(EnvCommandTimeout); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a duration", errutils.ErrValidation, EnvCommandTimeout, v)
		}
		c.Store.CommandTimeout = d
	}
	if v, ok := get(EnvLogLevel); ok {
		c.Settings.LogLevel = v
	}
	if v, ok := get(EnvClientURL); ok {
		c.Client.URL = v
	}
	if v, ok := get(EnvClientUser); ok {
		c.Client.Username = v
	}
	if v, ok := get(EnvClientPassword); ok {
		c.Client.Password = v
	}
	return nil
}
