package cmd

import (
	"github.com/spf13/cobra"

	"recorder-agent/config"
)

func Root(config *config.Config) *cobra.Command {
	rootCmd := &cobra.Command{}
	rootCmd.AddCommand(agent(config))
	return rootCmd
}
