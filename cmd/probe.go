package cmd

import (
	"errors"

	"github.com/lehigh-university-libraries/portfolio/internal/probe"
	"github.com/spf13/cobra"
)

func newProbeCmd(opts *rootOptions) *cobra.Command {
	var skipMongo bool

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Check connectivity to the database and the API",
		Long: `Runs each connectivity check in order and prints one line per check.

The MongoDB check pings the primary at MONGODB_URI. The API check requests
the health endpoint (HEALTH_URL, default http://localhost:8888/healthcheck).
Exits non-zero when any check fails.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg

			var checks []probe.Check
			if !skipMongo {
				checks = append(checks, probe.MongoCheck{URI: cfg.Probe.MongoURI})
			}
			checks = append(checks, probe.HTTPCheck{URL: cfg.Probe.HealthURL})

			if !probe.Run(cmd.Context(), cmd.OutOrStdout(), cfg.Probe.Timeout, checks...) {
				return errors.New("connectivity checks failed")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipMongo, "skip-mongo", false, "Only check the API health endpoint")

	return cmd
}
