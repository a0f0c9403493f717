package cmd

import (
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/tidelineproject/tideline/internal/tidectl"
)

func slaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sla",
		Short: "Inspect or set a pipeline's default SLA",
	}
	cmd.AddCommand(slaGetCmd(), slaSetCmd())
	return cmd
}

func slaGetCmd() *cobra.Command {
	a := tidectl.New()
	cmd := &cobra.Command{
		Use:   "get <group:pipeline>",
		Short: "Print the default SLA of a pipeline",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(cmd, a.Params)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.GetPipelineSla(args[0])
		},
	}
	return cmd
}

func slaSetCmd() *cobra.Command {
	a := tidectl.New()
	cmd := &cobra.Command{
		Use:   "set <group:pipeline> <seconds>",
		Short: "Set the default SLA jobs of a pipeline fall back to",
		Args:  cobra.ExactArgs(2),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(cmd, a.Params)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			seconds, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return errors.Wrapf(err, "invalid SLA %q", args[1])
			}
			return a.SetPipelineSla(args[0], seconds)
		},
	}
	return cmd
}
