package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/config"
	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/logging"
)

func main() {
	if err := rootCMD().Execute(); err != nil {
		os.Exit(1)
	}
}

// cliEnv is shared by every subcommand.
type cliEnv struct {
	cfgPath string
	cfg     *config.Config
	logger  *slog.Logger
}

func rootCMD() *cobra.Command {
	env := &cliEnv{}
	var root = &cobra.Command{
		Use:           "patternflow",
		Short:         "Upload data files and turn an analysis agent's answer into structured insights",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(env.cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			env.cfg = cfg
			env.logger = logging.Init(cfg.General.LogLevel, cfg.General.LogFormat, os.Stderr)
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&env.cfgPath, "config", "c", "", "config file (default is ./config.yaml if present)")

	root.AddCommand(serveCMD(env), analyzeCMD(env), resolveCMD(env), normalizeCMD(env))
	return root
}
