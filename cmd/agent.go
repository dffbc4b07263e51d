package cmd

import (
	"github.com/spf13/cobra"

	"recorder-agent/config"
	agentServer "recorder-agent/server"
)

func agent(config *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "agent",
		Short: "start the recording agent",
		Run: func(cmd *cobra.Command, args []string) {
			agentServer.RunAgent(config)
		},
	}
}
