package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func trainCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "train",
		Short: "Run the training pipeline once and print the result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			c, err := wire(ctx, g.cfg)
			if err != nil {
				return err
			}
			defer c.Close()

			res := c.newService().RunTrainingPipeline(ctx)
			if err := printJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if !res.Succeeded() {
				return fmt.Errorf("run %s %s: %s", res.RunID, res.Status, res.Reason)
			}
			return nil
		},
	}
}
