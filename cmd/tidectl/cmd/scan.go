package cmd

import (
	"github.com/spf13/cobra"

	"github.com/tidelineproject/tideline/internal/tidectl"
)

func scanCmd() *cobra.Command {
	a := tidectl.New()
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Check queued jobs against the settings in force",
		Long: `Walks every deadline stream and reports jobs that can no longer be
scheduled, for example requests larger than the fairshare pool after an
admin shrank it.`,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(cmd, a.Params)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.Scan()
		},
	}
	return cmd
}
