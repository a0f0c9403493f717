package cmd

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"k8s.io/apimachinery/pkg/api/resource"

	"github.com/tidelineproject/tideline/internal/tidectl"
)

func settingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Inspect or update the hot reloadable system settings",
	}
	cmd.AddCommand(settingsGetCmd(), settingsSetCmd())
	return cmd
}

func settingsGetCmd() *cobra.Command {
	a := tidectl.New()
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Print the system settings currently in force",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(cmd, a.Params)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.GetSettings()
		},
	}
	return cmd
}

func settingsSetCmd() *cobra.Command {
	a := tidectl.New()
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Update system settings",
		Long: `Updates the given system settings, leaving the rest untouched. Running
scalers pick the change up within the settings cache lifetime, no restart
needed.`,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(cmd, a.Params)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			update, err := settingsUpdateFromFlags(cmd)
			if err != nil {
				return err
			}
			return a.SetSettings(update)
		},
	}

	cmd.Flags().String("fairshareCpu", "", "cpu one scale loop may hand out, e.g. 16 (0 leaves it unconstrained)")
	cmd.Flags().String("fairshareMemory", "", "memory one scale loop may hand out, e.g. 64Gi (0 leaves it unconstrained)")
	cmd.Flags().String("fairshareStorage", "", "storage one scale loop may hand out (0 leaves it unconstrained)")
	cmd.Flags().Int64("deadlineWindow", 0, "how many stream entries one loop may look at")
	cmd.Flags().Int64("maxSway", 0, "how many jobs one loop may dispatch")
	cmd.Flags().Int64("dwell", 0, "seconds to sleep between scale loops")
	cmd.Flags().Int64("cacheLifetime", 0, "seconds cached settings and estimates may be stale")
	cmd.Flags().String("requiredAgentVersion", "", "MAJOR.MINOR version claims are gated on, empty disables the gate")

	return cmd
}

func settingsUpdateFromFlags(cmd *cobra.Command) (tidectl.SettingsUpdate, error) {
	update := tidectl.SettingsUpdate{}

	millis, err := quantityFlag(cmd, "fairshareCpu", func(q resource.Quantity) int64 { return q.MilliValue() })
	if err != nil {
		return update, err
	}
	update.FairshareCpu = millis

	bytes, err := quantityFlag(cmd, "fairshareMemory", func(q resource.Quantity) int64 { return q.Value() })
	if err != nil {
		return update, err
	}
	update.FairshareMemory = bytes

	bytes, err = quantityFlag(cmd, "fairshareStorage", func(q resource.Quantity) int64 { return q.Value() })
	if err != nil {
		return update, err
	}
	update.FairshareStorage = bytes

	update.DeadlineWindow = int64Flag(cmd, "deadlineWindow")
	update.MaxSway = int64Flag(cmd, "maxSway")
	update.DwellSeconds = int64Flag(cmd, "dwell")
	update.CacheLifetimeSeconds = int64Flag(cmd, "cacheLifetime")

	if cmd.Flags().Changed("requiredAgentVersion") {
		version, _ := cmd.Flags().GetString("requiredAgentVersion")
		update.RequiredAgentVersion = &version
	}
	return update, nil
}

func quantityFlag(cmd *cobra.Command, name string, convert func(q resource.Quantity) int64) (*int64, error) {
	if !cmd.Flags().Changed(name) {
		return nil, nil
	}
	value, _ := cmd.Flags().GetString(name)
	quantity, err := resource.ParseQuantity(value)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid %s quantity %q", name, value)
	}
	converted := convert(quantity)
	return &converted, nil
}

func int64Flag(cmd *cobra.Command, name string) *int64 {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	value, _ := cmd.Flags().GetInt64(name)
	return &value
}
