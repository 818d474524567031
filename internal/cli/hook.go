package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/glorpus-work/wheelhouse/internal/logger"
	"github.com/glorpus-work/wheelhouse/pkg/errutils"
	"github.com/glorpus-work/wheelhouse/pkg/fsutil"
	"github.com/glorpus-work/wheelhouse/pkg/hooks"
)

// NewHookCmd creates the hook command with subcommands.
func NewHookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hook",
		Short: "Manage lifecycle hook scripts",
		Long: `Lifecycle hooks are Tengo scripts named <type>.tengo in store.hooks_dir.
Supported types: pre-upload, post-upload, pre-delete, post-delete.
A pre hook vetoes the operation by setting err to a non-empty string.`,
	}

	cmd.AddCommand(
		newHookTemplateCmd(),
		newHookInitCmd(),
		newHookListCmd(),
	)

	return cmd
}

func newHookTemplateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template TYPE",
		Short: "Print a hook script template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t := hooks.HookType(args[0])
			if !t.Valid() {
				return hooks.ErrUnsupportedHookType(args[0])
			}
			_, err := fmt.Fprint(cmd.OutOrStdout(), hooks.HookTemplate(t))
			return err
		},
	}

	return cmd
}

func newHookInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init TYPE",
		Short: "Write a hook template into the hooks directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			t := hooks.HookType(args[0])
			if !t.Valid() {
				return hooks.ErrUnsupportedHookType(args[0])
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Store.HooksDir == "" {
				return fmt.Errorf("%w: store.hooks_dir is not set", errutils.ErrValidation)
			}

			path := filepath.Join(cfg.Store.HooksDir, string(t)+hooks.HookFileExtension)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%w: %s (use --force to overwrite)", errutils.ErrAlreadyExists, path)
			}
			if err := fsutil.EnsureDir(cfg.Store.HooksDir); err != nil {
				return err
			}
			if err := fsutil.AtomicWriteFile(path, []byte(hooks.HookTemplate(t)), fsutil.FileModeDefault); err != nil {
				return fmt.Errorf("failed to write hook: %w", err)
			}
			logger.Success("Hook created", logger.Fields{"path": path})
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing hook")

	return cmd
}

func newHookListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the configured hooks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			manager := hooks.NewHookManager()
			if err := hooks.LoadHooksFromDir(manager, cfg.Store.HooksDir); err != nil {
				return err
			}
			loaded := []string{}
			for _, t := range hooks.AllTypes {
				if manager.HasHook(t) {
					loaded = append(loaded, string(t))
				}
			}
			if len(loaded) == 0 && !jsonOutput() {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No hooks configured")
				return nil
			}
			return printLines(cmd.OutOrStdout(), loaded)
		},
	}

	return cmd
}
