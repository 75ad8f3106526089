package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/lehigh-university-libraries/portfolio/internal/catalog"
	"github.com/lehigh-university-libraries/portfolio/internal/config"
	"github.com/lehigh-university-libraries/portfolio/internal/storage"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	verbose    bool
	cfg        config.Config
}

func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "portfolio",
		Short: "Portfolio image catalog and gallery tooling",
		Long: `Portfolio manages the images shown on a personal portfolio site.

It serves the upload API and gallery, manages the persisted image catalog
from the command line, and checks that backing services are reachable.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()

			level := slog.LevelInfo
			if opts.verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to a YAML config file")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")

	// Add subcommands
	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newImagesCmd(opts))
	cmd.AddCommand(newProbeCmd(opts))

	return cmd
}

// openCatalog builds the file-backed catalog and loads it.
// Load problems that leave the manager usable are logged, not returned.
func openCatalog(cfg config.Config) (*catalog.Manager, error) {
	store, err := storage.NewFileStore(cfg.Store.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	manager := catalog.New(store,
		catalog.WithKey(cfg.Store.Key),
		catalog.WithEncoder(catalog.DataURIEncoder{MaxBytes: cfg.Server.MaxUploadBytes}),
	)

	err = manager.Load()
	switch {
	case err == nil:
	case errors.Is(err, catalog.ErrMalformedCatalog), errors.Is(err, catalog.ErrNotPersisted):
		slog.Warn("Catalog loaded with problems", "dir", store.Dir(), "err", err)
	default:
		return nil, err
	}
	return manager, nil
}
