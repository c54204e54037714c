package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/app"
	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/apperror"
	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/coordinator"
	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/present"
	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/upload"
)

func analyzeCMD(env *cliEnv) *cobra.Command {
	var (
		message    string
		retries    int
		asJSON     bool
		showDebug  bool
		showEvents bool
	)
	var analyze = &cobra.Command{
		Use:   "analyze <file>",
		Short: "Upload a spreadsheet and print the agent's insights",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !env.cfg.HasAPIKey() {
				return apperror.Configuration("Server configuration error: LYZR_API_KEY is not set.")
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			if message != "" {
				env.cfg.Agent.Instruction = message
			}

			a, err := app.New(cmd.Context(), env.cfg, env.logger, false)
			if err != nil {
				return err
			}
			defer a.Close()
			c := a.NewCoordinator()

			out := cmd.OutOrStdout()
			emit := func() error {
				snap := c.Snapshot()
				if asJSON {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(snap)
				}
				return present.Render(out, snap, present.Options{ShowDebug: showDebug, ShowEvents: showEvents})
			}

			f := upload.File{Name: filepath.Base(args[0]), Data: data}
			if err := c.SelectFile(cmd.Context(), f); err != nil {
				_ = emit()
				return err
			}
			err = c.Analyze(cmd.Context())
			for i := 0; err != nil && i < retries && c.Snapshot().CanRetry() && apperror.Retryable(err); i++ {
				env.logger.Info("retrying analysis", "attempt", i+1)
				err = c.Retry(cmd.Context())
			}
			if eerr := emit(); eerr != nil {
				return eerr
			}
			if err != nil && c.Snapshot().State != coordinator.Results {
				return err
			}
			return nil
		},
	}
	analyze.Flags().StringVarP(&message, "message", "m", "", "instruction sent to the agent (overrides agent.instruction)")
	analyze.Flags().IntVar(&retries, "retries", 0, "retry a failed analysis up to this many times")
	analyze.Flags().BoolVar(&asJSON, "json", false, "print the final snapshot as JSON")
	analyze.Flags().BoolVar(&showDebug, "debug", false, "include upstream diagnostics")
	analyze.Flags().BoolVar(&showEvents, "events", false, "include the agent event log")
	return analyze
}
