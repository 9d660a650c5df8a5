package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/talgya/segregation/internal/api"
	"github.com/talgya/segregation/internal/persistence"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve simulations and stored experiments over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.API.Port, _ = cmd.Flags().GetInt("port")
			}
			if cmd.Flags().Changed("db") {
				cfg.Storage.Path, _ = cmd.Flags().GetString("db")
			}

			srv := &api.Server{
				Params:      cfg.Params(),
				Port:        cfg.API.Port,
				RateLimit:   cfg.API.RateLimit,
				MaxLineSize: cfg.API.MaxLineSize,
				Logger:      slog.Default(),

				MaxIterations:     cfg.API.MaxIterations,
				MaxNeighborhood:   cfg.API.MaxNeighborhood,
				TrustForwardedFor: cfg.API.TrustForwardedFor,
			}
			if cfg.Storage.Path != "" {
				db, err := persistence.Open(cfg.Storage.Path)
				if err != nil {
					return err
				}
				defer db.Close()
				srv.DB = db
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().Int("port", 0, "Listen port (default from config)")
	cmd.Flags().String("db", "", "SQLite results file (default from config)")
	return cmd
}
