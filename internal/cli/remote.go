package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/glorpus-work/wheelhouse/internal/logger"
	"github.com/glorpus-work/wheelhouse/pkg/auth"
	"github.com/glorpus-work/wheelhouse/pkg/client"
	"github.com/glorpus-work/wheelhouse/pkg/errutils"
)

type remoteFlags struct {
	url      string
	username string
	password string
}

// NewRemoteCmd creates the remote command with subcommands.
func NewRemoteCmd() *cobra.Command {
	var flags remoteFlags

	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Operate a wheelhouse server over its HTTP API",
		Long: `Upload, delete and list packages through a running wheelhouse server.
The server and credentials come from the client section of the
configuration, WHEELHOUSE_URL, WHEELHOUSE_USER and WHEELHOUSE_PASSWORD,
or the flags below.`,
	}

	cmd.PersistentFlags().StringVar(&flags.url, "url", "", "server URL")
	cmd.PersistentFlags().StringVar(&flags.username, "user", "", "API username")
	cmd.PersistentFlags().StringVar(&flags.password, "password", "", "API password")

	cmd.AddCommand(
		newRemoteUploadCmd(&flags),
		newRemoteDeleteCmd(&flags),
		newRemoteListCmd(&flags),
		newRemoteSearchCmd(&flags),
		newRemoteReindexCmd(&flags),
		newRemoteLoginCmd(&flags),
	)

	return cmd
}

func (f *remoteFlags) client() (*client.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	c := cfg.Client
	if f.url != "" {
		c.URL = f.url
	}
	if f.username != "" {
		c.Username = f.username
	}
	if f.password != "" {
		c.Password = f.password
	}

	var creds *auth.BasicAuth
	if c.Username != "" {
		creds = &auth.BasicAuth{Username: c.Username, Password: c.Password}
	}
	return client.New(c.URL, c.Timeout, creds)
}

func newRemoteUploadCmd(flags *remoteFlags) *cobra.Command {
	var filename string

	cmd := &cobra.Command{
		Use:   "upload ARTIFACT...",
		Short: "Upload artifacts through the server",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if filename != "" && len(args) > 1 {
				return fmt.Errorf("%w: --name needs exactly one artifact", errutils.ErrValidation)
			}
			c, err := flags.client()
			if err != nil {
				return err
			}
			for _, artifact := range args {
				msg, err := c.Upload(cmd.Context(), artifact, filename)
				if err != nil {
					printMissing(cmd.ErrOrStderr(), err)
					return fmt.Errorf("failed to upload %s: %w", filepath.Base(artifact), err)
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), msg)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&filename, "name", "", "store the artifact under this file name")

	return cmd
}

func newRemoteDeleteCmd(flags *remoteFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete PACKAGE",
		Short: "Delete a package through the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.client()
			if err != nil {
				return err
			}
			resp, err := c.Delete(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to delete %s: %w", args[0], err)
			}
			if jsonOutput() {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			for _, f := range resp.Removed {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", f)
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
			return nil
		},
	}

	return cmd
}

func newRemoteListCmd(flags *remoteFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the server's simple index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := flags.client()
			if err != nil {
				return err
			}
			names, err := c.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list packages: %w", err)
			}
			if len(names) == 0 && !jsonOutput() {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No packages stored")
				return nil
			}
			return printLines(cmd.OutOrStdout(), names)
		},
	}

	return cmd
}

func newRemoteSearchCmd(flags *remoteFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search TEXT",
		Short: "Search the server's simple index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.client()
			if err != nil {
				return err
			}
			names, err := c.Search(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to search packages: %w", err)
			}
			if len(names) == 0 && !jsonOutput() {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "No packages found matching %q\n", args[0])
				return nil
			}
			return printLines(cmd.OutOrStdout(), names)
		},
	}

	return cmd
}

func newRemoteReindexCmd(flags *remoteFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the server's simple index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := flags.client()
			if err != nil {
				return err
			}
			if err := c.Reindex(cmd.Context()); err != nil {
				return fmt.Errorf("failed to rebuild index: %w", err)
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Index rebuilt")
			return nil
		},
	}

	return cmd
}

func newRemoteLoginCmd(flags *remoteFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Verify the configured credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := flags.client()
			if err != nil {
				return err
			}
			role, err := c.Login(cmd.Context())
			if err != nil {
				return fmt.Errorf("login failed: %w", err)
			}
			logger.Debug("Login succeeded", logger.Fields{"role": string(role)})
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Logged in with role %s\n", role)
			return nil
		},
	}

	return cmd
}
