package cli

import (
	"github.com/spf13/cobra"

	"github.com/glorpus-work/wheelhouse/internal/logger"
	"github.com/glorpus-work/wheelhouse/pkg/server"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serve the package API until interrupted.

Uploads, deletes, reindexing and user management require an admin user;
listing and searching are open. Manage users with "wheelhouse user".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, err := loadEngine()
			if err != nil {
				return err
			}
			users, err := openUsers(eng.cfg)
			if err != nil {
				return err
			}

			cfg := eng.cfg.Server
			if listen != "" {
				cfg.Listen = listen
			}
			if list, _ := users.List(); len(list) == 0 {
				logger.Warn("No users configured; mutating endpoints will reject every request", logger.Fields{"users_file": users.Path()})
			}

			srv := server.New(cfg, server.Deps{
				Packages: eng.sync,
				Catalog:  eng.catalog,
				Auth:     users,
				Users:    users,
			})
			logger.Info("Serving package store", logger.Fields{
				"transport": eng.cfg.Store.Transport,
				"root":      eng.sync.StoreRoot,
				"listen":    srv.Addr(),
			})
			return srv.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides server.listen)")

	return cmd
}
