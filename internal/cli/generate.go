package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/okian/autotrain/internal/synth"
	"github.com/okian/autotrain/pkg/logger"
)

func generateCmd(_ *globals) *cobra.Command {
	opts := synth.DefaultOptions()
	var out string

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a synthetic vehicle dataset as CSV or XLSX",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.Rows <= 0 {
				return fmt.Errorf("--rows must be positive, got %d", opts.Rows)
			}
			records := synth.Generate(opts)
			if err := synth.WriteFile(out, records); err != nil {
				return err
			}
			logger.Get().Named("generate").Info(cmd.Context(), "dataset written",
				logger.String("path", out),
				logger.Int("rows", len(records)),
			)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&out, "out", "vehicles.csv", "output path, .csv or .xlsx")
	f.IntVar(&opts.Rows, "rows", opts.Rows, "number of rows")
	f.Uint64Var(&opts.Seed, "seed", opts.Seed, "random seed")
	f.Float64Var(&opts.NullRate, "null-rate", opts.NullRate, "chance a nullable field is missing")
	f.Float64Var(&opts.DuplicateRate, "duplicate-rate", opts.DuplicateRate, "chance a row repeats an earlier one")
	f.Float64Var(&opts.PriceShift, "price-shift", opts.PriceShift, "multiplier applied to every price")
	f.BoolVar(&opts.OmitTarget, "omit-target", false, "leave the price column out")
	return cmd
}
