package cli

import (
	"github.com/spf13/cobra"
)

func registryCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Inspect and manage promoted models",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List promoted versions, newest first",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				_, reg, err := openStore(g.cfg)
				if err != nil {
					return err
				}
				versions, err := reg.Versions(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), versions)
			},
		},
		&cobra.Command{
			Use:   "current",
			Short: "Show the version currently serving predictions",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				_, reg, err := openStore(g.cfg)
				if err != nil {
					return err
				}
				entry, err := reg.Current(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), entry)
			},
		},
		&cobra.Command{
			Use:   "rollback <version>",
			Short: "Point the current alias back at an earlier version",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				_, reg, err := openStore(g.cfg)
				if err != nil {
					return err
				}
				entry, err := reg.Rollback(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), entry)
			},
		},
		&cobra.Command{
			Use:   "history",
			Short: "Show promotion and rollback events",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				_, reg, err := openStore(g.cfg)
				if err != nil {
					return err
				}
				events, err := reg.History(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), events)
			},
		},
	)
	return cmd
}
