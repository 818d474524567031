package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/glorpus-work/wheelhouse/pkg/errutils"
	"github.com/glorpus-work/wheelhouse/pkg/synchronizer"
)

// NewCheckCmd creates the check command.
func NewCheckCmd() *cobra.Command {
	var filename string

	cmd := &cobra.Command{
		Use:   "check ARTIFACT",
		Short: "Check whether an artifact could be uploaded",
		Long: `Read the artifact's metadata and check its dependencies against the
store without changing anything. Exits non-zero when a dependency is
missing.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := loadEngine()
			if err != nil {
				return err
			}
			if _, err := os.Stat(args[0]); err != nil {
				return fmt.Errorf("%w: %s", errutils.ErrFileNotFound, args[0])
			}

			res, err := eng.sync.Check(cmd.Context(), args[0], filename)
			if err != nil {
				return fmt.Errorf("failed to check %s: %w", args[0], err)
			}

			if jsonOutput() {
				if err := printJSON(cmd.OutOrStdout(), res); err != nil {
					return err
				}
			} else {
				printCheck(cmd, res)
			}
			if !res.Satisfied {
				return errutils.NewDependencyError(res.Missing)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&filename, "name", "", "file name the artifact would be stored under")

	return cmd
}

func printCheck(cmd *cobra.Command, res *synchronizer.CheckResult) {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, TabWidth, ' ', 0)
	_, _ = fmt.Fprintf(tw, "Package:\t%s %s\n", res.Name, res.Version)
	_, _ = fmt.Fprintf(tw, "File:\t%s\n", res.Filename)
	if res.MetadataError != "" {
		_, _ = fmt.Fprintf(tw, "Metadata:\tunreadable (%s)\n", res.MetadataError)
	}
	_ = tw.Flush()

	if len(res.Dependencies) == 0 {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No dependencies")
	} else {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Dependencies:")
		for _, d := range res.Dependencies {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", d.Raw)
		}
	}

	if res.Satisfied {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "All dependencies satisfied")
		return
	}
	printMissing(cmd.OutOrStdout(), errutils.NewDependencyError(res.Missing))
}
