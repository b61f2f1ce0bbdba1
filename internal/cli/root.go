// Package cli implements the autotrain command line.
package cli

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/okian/autotrain/internal/config"
	"github.com/okian/autotrain/pkg/logger"
)

// globals are the persistent flags and the configuration they resolve to.
type globals struct {
	configPath string
	envFile    string
	logLevel   string
	logFormat  string

	cfg *config.Config
}

// Execute runs the root command with ctx.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	g := &globals{}

	cmd := &cobra.Command{
		Use:          "autotrain",
		Short:        "Vehicle price training pipeline, model registry and prediction service",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return g.load(cmd.Context(), cmd.ErrOrStderr())
		},
	}

	cmd.PersistentFlags().StringVar(&g.configPath, "config", "", "YAML config file (defaults to $"+config.EnvConfigPath+")")
	cmd.PersistentFlags().StringVar(&g.envFile, "env-file", ".env", "dotenv file loaded before the environment")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "override log_level: debug|info|warn|error")
	cmd.PersistentFlags().StringVar(&g.logFormat, "log-format", "", "override log_format: text|json")

	cmd.AddCommand(
		trainCmd(g),
		serveCmd(g),
		predictCmd(g),
		registryCmd(g),
		generateCmd(g),
		smokeCmd(g),
	)
	return cmd
}

func (g *globals) load(ctx context.Context, logOut io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(ctx, config.WithFile(g.configPath), config.WithEnvFile(g.envFile))
	if err != nil {
		return err
	}
	if g.logLevel != "" {
		cfg.LogLevel = g.logLevel
	}
	if g.logFormat != "" {
		cfg.LogFormat = g.logFormat
	}

	// Logs go to stderr so command output on stdout stays machine readable.
	if logOut == nil {
		logOut = os.Stderr
	}
	if err := logger.InitWithFormat(cfg.LogFormat, logOut); err != nil {
		return err
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	g.cfg = cfg
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
