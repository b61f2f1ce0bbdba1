package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	service "github.com/okian/autotrain/internal/app"
	"github.com/okian/autotrain/internal/domain/dataset"
	"github.com/okian/autotrain/pkg/logger"
)

const predictExample = `  autotrain predict --row '{"make":"toyota","model":"corolla","year":2019,"mileage":42000,"engine_size":1.8,"fuel_type":"petrol","transmission":"manual"}'`

func predictCmd(g *globals) *cobra.Command {
	var row string

	cmd := &cobra.Command{
		Use:     "predict",
		Short:   "Predict the price of one vehicle with the current model",
		Example: predictExample,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if row == "" {
				return errors.New("--row is required")
			}
			var rec dataset.Record
			if err := json.Unmarshal([]byte(row), &rec); err != nil {
				return fmt.Errorf("--row: %w", err)
			}
			if rec == nil {
				return errors.New("--row must be a JSON object")
			}

			_, reg, err := openStore(g.cfg)
			if err != nil {
				return err
			}
			svc := service.New(nil, reg, service.WithLogger(logger.Get().Named("service")))
			pred, err := svc.RunPrediction(cmd.Context(), rec)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), pred)
		},
	}
	cmd.Flags().StringVar(&row, "row", "", "vehicle features as a JSON object")
	return cmd
}
