package cmd

import (
	"github.com/spf13/cobra"

	"github.com/tidelineproject/tideline/internal/tidectl"
)

func statsCmd() *cobra.Command {
	a := tidectl.New()
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print queue depth and deadline slack per namespace",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(cmd, a.Params)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.Stats()
		},
	}
	return cmd
}
