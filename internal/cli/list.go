package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewListCmd creates the list command.
func NewListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored packages",
		Long:  "List the entries of the simple index, sorted by name.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, err := loadEngine()
			if err != nil {
				return err
			}

			names, err := eng.catalog.List(cmd.Context())
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
