package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/florean/agora/config"
	"github.com/florean/agora/llm"
	"github.com/florean/agora/roster"
)

func newAgentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agents",
		Short: "Inspect and generate agent roster definitions",
	}
	cmd.AddCommand(newAgentsCheckCmd(), newAgentsGenerateCmd())
	return cmd
}

func newAgentsCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <agents.yaml>",
		Short: "Validate a roster definition file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			agents, err := roster.LoadDefinitions(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, a := range agents {
				fmt.Fprintf(out, "%s (%d seed memories)\n", a.Name, len(a.Memories))
			}
			fmt.Fprintf(out, "%d agents OK\n", len(agents))
			return nil
		},
	}
}

func newAgentsGenerateCmd() *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "generate <context>",
		Short: "Generate a roster from a context description",
		Long: `Generate a roster from a plain-language context description.

The characters the context calls for are identified first, then each one
gets a full first-person persona prompt. The result is written as an
agents.yaml definition, ready for 'agora run --agents'.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			completer, err := llm.NewAnthropic(cfg.APIKey, cfg.Model)
			if err != nil {
				return err
			}

			gen := roster.NewGenerator(completer, roster.WithMaxTokens(cfg.MaxTokens))
			agents, err := gen.Generate(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}

			data, err := roster.MarshalDefinitions(agents)
			if err != nil {
				return err
			}
			if outPath == "" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(outPath, data, 0o600); err != nil {
				return fmt.Errorf("write %s: %w", outPath, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d agents written to %s\n", len(agents), outPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write the definition to a file instead of stdout")
	return cmd
}
