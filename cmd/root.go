package cmd

import "github.com/spf13/cobra"

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "agora",
		Short:         "agora: multi-agent conversations with turn arbitration",
		Long:          "agora runs a panel of agent personas against a shared conversation. Every round, all agents propose a contribution in parallel and exactly one wins the turn: highest declared priority, ties settled by a judgment call.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newAgentsCmd(),
	)

	return rootCmd
}
