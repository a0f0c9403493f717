package cmd

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"k8s.io/apimachinery/pkg/api/resource"

	"github.com/tidelineproject/tideline/internal/scaler/model"
	"github.com/tidelineproject/tideline/internal/tidectl"
)

func submitCmd() *cobra.Command {
	a := tidectl.New()
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a reaction of identical jobs",
		Long: `Submits one reaction of identical jobs into a pipeline's deadline stream.

Example:
  tidectl submit --group corp --pipeline triage --stage unpack --user alice --count 10 --cpu 2 --memory 4Gi --sla 86400`,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(cmd, a.Params)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			group, _ := cmd.Flags().GetString("group")
			pipeline, _ := cmd.Flags().GetString("pipeline")
			user, _ := cmd.Flags().GetString("user")
			stage, _ := cmd.Flags().GetString("stage")
			count, _ := cmd.Flags().GetInt("count")

			resources, err := resourcesFromFlags(cmd)
			if err != nil {
				return err
			}

			var sla *int64
			if cmd.Flags().Changed("sla") {
				seconds, _ := cmd.Flags().GetInt64("sla")
				sla = &seconds
			}

			return a.Submit(group, pipeline, user, stage, count, resources, sla)
		},
	}

	cmd.Flags().String("group", "", "group the jobs belong to")
	cmd.Flags().String("pipeline", "", "pipeline the jobs belong to")
	cmd.Flags().String("user", "", "submitting user, charged for fairshare")
	cmd.Flags().String("stage", "", "pipeline stage the jobs run")
	cmd.Flags().Int("count", 1, "number of identical jobs to submit")
	cmd.Flags().String("cpu", "1", "cpu request per job")
	cmd.Flags().String("memory", "1Gi", "memory request per job")
	cmd.Flags().String("storage", "0", "ephemeral storage request per job")
	cmd.Flags().Int64("sla", 0, "explicit SLA in seconds applied to every job of the reaction")
	for _, required := range []string{"group", "pipeline", "user", "stage"} {
		if err := cmd.MarkFlagRequired(required); err != nil {
			panic(err)
		}
	}

	return cmd
}

func resourcesFromFlags(cmd *cobra.Command) (model.Resources, error) {
	quantities := make([]resource.Quantity, 0, 3)
	for _, flag := range []string{"cpu", "memory", "storage"} {
		value, _ := cmd.Flags().GetString(flag)
		quantity, err := resource.ParseQuantity(value)
		if err != nil {
			return model.Resources{}, errors.Wrapf(err, "invalid %s quantity %q", flag, value)
		}
		quantities = append(quantities, quantity)
	}
	return model.ResourcesFromQuantities(quantities[0], quantities[1], quantities[2]), nil
}
