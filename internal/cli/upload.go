package cli

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/glorpus-work/wheelhouse/internal/logger"
	"github.com/glorpus-work/wheelhouse/pkg/errutils"
)

// NewUploadCmd creates the upload command.
func NewUploadCmd() *cobra.Command {
	var filename string

	cmd := &cobra.Command{
		Use:   "upload ARTIFACT...",
		Short: "Upload artifacts to the store",
		Long: `Upload one or more wheels or source distributions.

Each artifact is checked against the store first: every unconditional
Requires-Dist entry must be satisfied by an artifact already stored.
Artifacts are uploaded in the given order, so a package can be uploaded
together with its dependencies when they come first.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if filename != "" && len(args) > 1 {
				return fmt.Errorf("%w: --name needs exactly one artifact", errutils.ErrValidation)
			}
			return runUpload(cmd, args, filename)
		},
	}

	cmd.Flags().StringVar(&filename, "name", "", "store the artifact under this file name")

	return cmd
}

func runUpload(cmd *cobra.Command, artifacts []string, filename string) error {
	eng, err := loadEngine()
	if err != nil {
		return err
	}
	eng.sync.Hooks = progressHooks(cmd.ErrOrStderr())

	for _, artifact := range artifacts {
		name := filename
		if name == "" {
			name = filepath.Base(artifact)
		}
		res, err := eng.sync.Upload(cmd.Context(), artifact, name)
		if err != nil {
			printMissing(cmd.ErrOrStderr(), err)
			return fmt.Errorf("failed to upload %s: %w", name, err)
		}
		logger.Success("Package uploaded", logger.Fields{"package": res.Name, "version": res.Version})
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Package %s uploaded and indexed!\n", res.Filename)
	}
	return nil
}

// printMissing lists unsatisfied dependencies carried by err, if any.
func printMissing(w io.Writer, err error) {
	e, ok := errutils.AsError(err)
	if !ok || e.Kind != errutils.KindDependencyUnsatisfied {
		return
	}
	_, _ = fmt.Fprintln(w, "Missing dependencies:")
	for _, m := range e.Missing {
		_, _ = fmt.Fprintf(w, "  - %s\n", m)
	}
}
