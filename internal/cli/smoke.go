package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/autotrain/internal/synth"
)

func smokeCmd(_ *globals) *cobra.Command {
	cfg := synth.SmokeConfig{
		BaseURL:  "http://localhost:9080",
		Requests: 200,
		Workers:  8,
		Timeout:  5 * time.Second,
		Seed:     11,
	}

	cmd := &cobra.Command{
		Use:   "smoke",
		Short: "Send synthetic prediction traffic to a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stats, err := synth.Smoke(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), stats); err != nil {
				return err
			}
			if stats.Failed > 0 {
				return fmt.Errorf("%d of %d requests failed", stats.Failed, stats.Requests)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&cfg.BaseURL, "url", cfg.BaseURL, "server base URL")
	f.IntVar(&cfg.Requests, "requests", cfg.Requests, "total prediction requests")
	f.IntVar(&cfg.Workers, "workers", cfg.Workers, "concurrent clients")
	f.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "per request timeout")
	f.Uint64Var(&cfg.Seed, "seed", cfg.Seed, "random seed for generated rows")
	return cmd
}
