package cmd

import (
	"github.com/spf13/cobra"

	"github.com/tidelineproject/tideline/internal/tidectl"
)

func jobCmd() *cobra.Command {
	a := tidectl.New()
	cmd := &cobra.Command{
		Use:   "job <jobId>",
		Short: "Print a job",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(cmd, a.Params)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.GetJob(args[0])
		},
	}
	return cmd
}
