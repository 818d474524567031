package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewReindexCmd creates the reindex command.
func NewReindexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the simple index",
		Long:  "Regenerate the simple index from the artifacts currently in the store.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, err := loadEngine()
			if err != nil {
				return err
			}
			if err := eng.sync.Reindex(cmd.Context()); err != nil {
				return fmt.Errorf("failed to rebuild index: %w", err)
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Index rebuilt")
			return nil
		},
	}

	return cmd
}
