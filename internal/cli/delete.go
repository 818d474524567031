package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewDeleteCmd creates the delete command.
func NewDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete PACKAGE",
		Short: "Delete a package from the store",
		Long: `Delete every artifact of a package and its simple index entry, then
rebuild the index. Names are compared after normalization, so "Foo.Bar"
removes foo_bar artifacts but never foobar ones. Deleting a package that
is not stored succeeds.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := loadEngine()
			if err != nil {
				return err
			}
			eng.sync.Hooks = progressHooks(cmd.ErrOrStderr())

			res, err := eng.sync.Delete(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to delete %s: %w", args[0], err)
			}

			if jsonOutput() {
				return printJSON(cmd.OutOrStdout(), res)
			}
			for _, r := range res.Removed {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", r)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Package %s deleted!\n", args[0])
			return nil
		},
	}

	return cmd
}
