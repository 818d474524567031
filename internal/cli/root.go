// Package cli implements the wheelhouse command line.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/glorpus-work/wheelhouse/pkg/errutils"
)

// Exit codes returned by the wheelhouse binary.
const (
	ExitOK                    = 0
	ExitFailure               = 1
	ExitInvalidArtifact       = 2
	ExitDependencyUnsatisfied = 3
	ExitIndexStale            = 4
	ExitTransport             = 5
)

// NewRootCmd creates the wheelhouse root command with all subcommands.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wheelhouse",
		Short: "A private Python package repository",
		Long: `wheelhouse keeps a private Python package store in sync:
- Upload: verify dependencies, place the artifact and rebuild the simple index
- Delete: remove every artifact of a package and rebuild the index
- Serve: expose the store over an authenticated HTTP API
- Remote: drive a running server through that API`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default: auto-detect)")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", "", "load environment variables from this file (default: .env)")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "", "output format (text, json)")

	cmd.AddCommand(
		NewServeCmd(),
		NewUploadCmd(),
		NewDeleteCmd(),
		NewListCmd(),
		NewSearchCmd(),
		NewCheckCmd(),
		NewReindexCmd(),
		NewRemoteCmd(),
		NewUserCmd(),
		NewHookCmd(),
		NewConfigCmd(),
		NewVersionCmd(),
	)

	return cmd
}

// ExitCode maps a command error to the process exit status.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	switch errutils.KindOf(err) {
	case errutils.KindInvalidArtifact, errutils.KindMetadataUnreadable:
		return ExitInvalidArtifact
	case errutils.KindDependencyUnsatisfied:
		return ExitDependencyUnsatisfied
	case errutils.KindIndexRebuild:
		return ExitIndexStale
	case errutils.KindTransport:
		return ExitTransport
	default:
		return ExitFailure
	}
}
