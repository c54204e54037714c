package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/assets"
	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/insights"
	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/jsonvalue"
	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/logging"
	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/present"
)

// readDocument reads a JSON document from path, or stdin when path is "-" or empty.
func readDocument(cmd *cobra.Command, args []string) (jsonvalue.Value, error) {
	var (
		data []byte
		err  error
	)
	if len(args) == 0 || args[0] == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return jsonvalue.Null(), err
	}
	return jsonvalue.Parse(data)
}

func resolveCMD(env *cliEnv) *cobra.Command {
	var diagnose bool
	var resolve = &cobra.Command{
		Use:   "resolve [file|-]",
		Short: "Extract asset ids from an upload response body",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readDocument(cmd, args)
			if err != nil {
				return fmt.Errorf("read upload response: %w", err)
			}
			rc := env.cfg.Resolver
			ids := assets.NewResolver(rc.KeyNames, rc.MinFallbackLength, rc.MaxDepth).Resolve(doc)
			out := cmd.OutOrStdout()
			for _, id := range ids {
				fmt.Fprintln(out, id)
			}
			if diagnose || len(ids) == 0 {
				enc := json.NewEncoder(cmd.ErrOrStderr())
				enc.SetIndent("", "  ")
				if err := enc.Encode(assets.Diagnose(doc)); err != nil {
					return err
				}
			}
			if len(ids) == 0 {
				return fmt.Errorf("no asset id found")
			}
			return nil
		},
	}
	resolve.Flags().BoolVar(&diagnose, "diagnose", false, "print the document shape to stderr")
	return resolve
}

func normalizeCMD(env *cliEnv) *cobra.Command {
	var asJSON bool
	var normalize = &cobra.Command{
		Use:   "normalize [file|-]",
		Short: "Normalize a raw agent response into insights",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readDocument(cmd, args)
			if err != nil {
				return fmt.Errorf("read agent response: %w", err)
			}
			outcome, err := insights.NewNormalizer(logging.Component(env.logger, "insights"), nil).Normalize(doc)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(outcome)
			}
			if err := present.Insights(out, outcome.Insights); err != nil {
				return err
			}
			if outcome.ReportURL != "" {
				fmt.Fprintf(out, "\nReport: %s\n", outcome.ReportURL)
			}
			for _, w := range outcome.Warnings {
				fmt.Fprintf(out, "warning: %s\n", w)
			}
			return nil
		},
	}
	normalize.Flags().BoolVar(&asJSON, "json", false, "print the outcome as JSON")
	return normalize
}
