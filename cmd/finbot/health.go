package main

import (
	"fmt"

	"github.com/norkodev/finbot/internal/cli"
	"github.com/norkodev/finbot/internal/llm"
	"github.com/spf13/cobra"
)

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the AI classification service",
		Long:  `Verify that the configured AI provider is reachable and has the model.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !cfg.LLM.Enabled {
				fmt.Fprintln(out, cli.FormatInfo("AI classification is disabled (llm.enabled=false)"))
				return nil
			}

			classifier, err := llm.NewClassifier(ctx, llm.ConfigFrom(cfg.LLM), nil, nil)
			if err != nil {
				return err
			}
			defer func() { _ = classifier.Close() }()

			if err := classifier.HealthCheck(ctx); err != nil {
				fmt.Fprintln(out, cli.FormatError(fmt.Sprintf("%s is not available: %v", classifier.Provider(), err)))
				return err
			}
			fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("%s is ready", classifier.Provider())))
			return nil
		},
	}
}
