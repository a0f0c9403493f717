package cmd

import (
	"github.com/spf13/cobra"

	"github.com/tidelineproject/tideline/internal/tidectl"
)

func cancelCmd() *cobra.Command {
	a := tidectl.New()
	cmd := &cobra.Command{
		Use:   "cancel <jobId>",
		Short: "Cancel a queued job",
		Long:  "Cancels a queued job by id. Jobs a worker has already claimed are left alone.",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(cmd, a.Params)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.CancelJob(args[0])
		},
	}
	return cmd
}
