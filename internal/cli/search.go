package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewSearchCmd creates the search command.
func NewSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search TEXT",
		Short: "Search stored packages",
		Long:  "List the simple index entries containing TEXT, ignoring case.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := loadEngine()
			if err != nil {
				return err
			}

			names, err := eng.catalog.Search(cmd.Context(), args[0])
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
