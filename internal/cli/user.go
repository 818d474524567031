package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/glorpus-work/wheelhouse/internal/logger"
	"github.com/glorpus-work/wheelhouse/pkg/auth"
	"github.com/glorpus-work/wheelhouse/pkg/errutils"
)

// NewUserCmd creates the user command with subcommands.
func NewUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage API users",
		Long:  "Add, modify and remove the users allowed to call the HTTP API.",
	}

	cmd.AddCommand(
		newUserAddCmd(),
		newUserPasswdCmd(),
		newUserRoleCmd(),
		newUserRemoveCmd(),
		newUserListCmd(),
	)

	return cmd
}

type passwordFlags struct {
	password string
	stdin    bool
}

func (p *passwordFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&p.password, "password", "", "password (visible in the process list; prefer --password-stdin)")
	cmd.Flags().BoolVar(&p.stdin, "password-stdin", false, "read the password from the first line of stdin")
	cmd.MarkFlagsMutuallyExclusive("password", "password-stdin")
}

func (p *passwordFlags) read(in io.Reader) (string, error) {
	if !p.stdin {
		if p.password == "" {
			return "", fmt.Errorf("%w: --password or --password-stdin is required", errutils.ErrValidation)
		}
		return p.password, nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", fmt.Errorf("%w: empty password on stdin", errutils.ErrValidation)
	}
	return password, nil
}

func newUserAddCmd() *cobra.Command {
	var (
		pw   passwordFlags
		role string
	)

	cmd := &cobra.Command{
		Use:   "add USERNAME",
		Short: "Add a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := auth.ParseRole(role)
			if err != nil {
				return err
			}
			password, err := pw.read(cmd.InOrStdin())
			if err != nil {
				return err
			}
			users, err := loadUsers()
			if err != nil {
				return err
			}
			if err := users.Add(args[0], password, r); err != nil {
				return fmt.Errorf("failed to add user: %w", err)
			}
			logger.Success("User added", logger.Fields{"username": args[0], "role": string(r)})
			return nil
		},
	}

	pw.register(cmd)
	cmd.Flags().StringVar(&role, "role", string(auth.DefaultRole), "role (admin or user)")

	return cmd
}

func newUserPasswdCmd() *cobra.Command {
	var pw passwordFlags

	cmd := &cobra.Command{
		Use:   "passwd USERNAME",
		Short: "Change a user's password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := pw.read(cmd.InOrStdin())
			if err != nil {
				return err
			}
			users, err := loadUsers()
			if err != nil {
				return err
			}
			if err := users.SetPassword(args[0], password); err != nil {
				return fmt.Errorf("failed to change password: %w", err)
			}
			logger.Success("Password changed", logger.Fields{"username": args[0]})
			return nil
		},
	}

	pw.register(cmd)

	return cmd
}

// Number of arguments expected by the role command.
const roleCommandArgs = 2

func newUserRoleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "role USERNAME ROLE",
		Short: "Change a user's role",
		Args:  cobra.ExactArgs(roleCommandArgs),
		RunE: func(_ *cobra.Command, args []string) error {
			r, err := auth.ParseRole(args[1])
			if err != nil {
				return err
			}
			users, err := loadUsers()
			if err != nil {
				return err
			}
			if err := users.SetRole(args[0], r); err != nil {
				return fmt.Errorf("failed to change role: %w", err)
			}
			logger.Success("Role changed", logger.Fields{"username": args[0], "role": string(r)})
			return nil
		},
	}

	return cmd
}

func newUserRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "remove USERNAME",
		Aliases: []string{"rm"},
		Short:   "Remove a user",
		Args:    cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			users, err := loadUsers()
			if err != nil {
				return err
			}
			if err := users.Remove(args[0]); err != nil {
				return fmt.Errorf("failed to remove user: %w", err)
			}
			logger.Success("User removed", logger.Fields{"username": args[0]})
			return nil
		},
	}

	return cmd
}

func newUserListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			users, err := loadUsers()
			if err != nil {
				return err
			}
			list, err := users.List()
			if err != nil {
				return fmt.Errorf("failed to list users: %w", err)
			}
			if jsonOutput() {
				return printJSON(cmd.OutOrStdout(), list)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, TabWidth, ' ', 0)
			_, _ = fmt.Fprintln(tw, "USERNAME\tROLE")
			for _, u := range list {
				_, _ = fmt.Fprintf(tw, "%s\t%s\n", u.Username, u.Role)
			}
			return tw.Flush()
		},
	}

	return cmd
}

func loadUsers() (*auth.FileStore, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return openUsers(cfg)
}
