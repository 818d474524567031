package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/glorpus-work/wheelhouse/internal/logger"
	"github.com/glorpus-work/wheelhouse/pkg/auth"
	"github.com/glorpus-work/wheelhouse/pkg/catalog"
	"github.com/glorpus-work/wheelhouse/pkg/config"
	"github.com/glorpus-work/wheelhouse/pkg/fsutil"
	"github.com/glorpus-work/wheelhouse/pkg/hooks"
	"github.com/glorpus-work/wheelhouse/pkg/metadata"
	"github.com/glorpus-work/wheelhouse/pkg/satisfier"
	"github.com/glorpus-work/wheelhouse/pkg/synchronizer"
	"github.com/glorpus-work/wheelhouse/pkg/transport"
)

// Global flag values, bound by NewRootCmd.
var (
	configPath   string
	envFile      string
	verbose      bool
	outputFormat string
)

// lookupEnv is replaced in tests.
var lookupEnv config.LookupFunc = os.LookupEnv

func getConfigPath() string {
	if configPath != "" {
		return configPath
	}

	defaultPath, err := fsutil.GetDefaultConfigPath()
	if err != nil {
		logger.Warn("Failed to get default config path, using ./config.yaml", logger.Fields{"error": err.Error()})
		return "config.yaml"
	}
	return defaultPath
}

// loadConfig reads the configuration, overlays .env and the environment,
// applies the global flags and initializes the logger.
func loadConfig() (*config.Config, error) {
	var files []string
	if envFile != "" {
		files = append(files, envFile)
	}
	if err := config.LoadDotEnv(files...); err != nil {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	cfg, err := config.Load(getConfigPath(), lookupEnv)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if outputFormat != "" {
		cfg.Settings.LogFormat = outputFormat
	}
	if verbose {
		cfg.Settings.LogLevel = "debug"
	}
	logger.InitLogger(cfg.Settings.LogLevel, logger.OutputFormat(cfg.Settings.LogFormat))
	return cfg, nil
}

// engine bundles the components built from one configuration.
type engine struct {
	cfg     *config.Config
	sync    *synchronizer.Synchronizer
	catalog *catalog.Catalog
}

func newEngine(cfg *config.Config) (*engine, error) {
	tr, err := transport.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create store transport: %w", err)
	}

	scripts := hooks.NewHookManager()
	if err := hooks.LoadHooksFromDir(scripts, cfg.Store.HooksDir); err != nil {
		return nil, fmt.Errorf("failed to load hooks: %w", err)
	}

	storeRoot := cfg.Store.Root
	if l, ok := tr.(*transport.Local); ok {
		storeRoot = l.Root()
	}

	return &engine{
		cfg: cfg,
		sync: &synchronizer.Synchronizer{
			Reader:         metadata.NewReader(),
			Satisfier:      satisfier.New(tr),
			Store:          tr,
			Scripts:        scripts,
			StoreRoot:      storeRoot,
			StrictMetadata: cfg.Store.StrictMetadata,
		},
		catalog: catalog.New(tr),
	}, nil
}

// progressHooks prints synchronizer events to w when --verbose is set.
func progressHooks(w io.Writer) synchronizer.Hooks {
	if !verbose {
		return synchronizer.Hooks{}
	}
	return synchronizer.Hooks{OnEvent: func(e synchronizer.Event) {
		if e.Msg != "" {
			_, _ = fmt.Fprintf(w, "%s: %s (%s)\n", e.Phase, e.Msg, e.Name)
		} else {
			_, _ = fmt.Fprintf(w, "%s: %s\n", e.Phase, e.Name)
		}
	}}
}

// loadEngine is loadConfig followed by newEngine.
func loadEngine() (*engine, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return newEngine(cfg)
}

func openUsers(cfg *config.Config) (*auth.FileStore, error) {
	users, err := auth.NewFileStore(cfg.Server.UsersFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open users file: %w", err)
	}
	return users, nil
}

func jsonOutput() bool {
	return outputFormat == string(logger.FormatJSON)
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printLines writes one entry per line, or a JSON array with --output json.
func printLines(w io.Writer, lines []string) error {
	if jsonOutput() {
		return printJSON(w, lines)
	}
	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}
	return nil
}
