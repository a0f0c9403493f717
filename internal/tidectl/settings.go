package tidectl

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/tidelineproject/tideline/internal/scaler/model"
)

type settingsView struct {
	FairshareCpu         int64  `yaml:"fairshareCpu"`
	FairshareMemory      int64  `yaml:"fairshareMemory"`
	FairshareStorage     int64  `yaml:"fairshareStorage"`
	DeadlineWindow       int64  `yaml:"deadlineWindow"`
	MaxSway              int64  `yaml:"maxSway"`
	DwellSeconds         int64  `yaml:"dwellSeconds"`
	CacheLifetimeSeconds int64  `yaml:"cacheLifetimeSeconds"`
	RequiredAgentVersion string `yaml:"requiredAgentVersion,omitempty"`
}

// SettingsUpdate carries the fields to change; nil fields keep their stored
// value.
type SettingsUpdate struct {
	FairshareCpu         *int64
	FairshareMemory      *int64
	FairshareStorage     *int64
	DeadlineWindow       *int64
	MaxSway              *int64
	DwellSeconds         *int64
	CacheLifetimeSeconds *int64
	RequiredAgentVersion *string
}

// GetSettings prints the system settings currently in force.
func (a *App) GetSettings() error {
	return a.withRepositories(func(r *repositories) error {
		settings, err := r.settings.Get()
		if err != nil {
			return err
		}
		return a.printYaml(viewOfSettings(settings))
	})
}

// SetSettings applies the update on top of the stored settings; values the
// update leaves nil are kept. Invalid combinations are rejected as a whole.
func (a *App) SetSettings(update SettingsUpdate) error {
	return a.withRepositories(func(r *repositories) error {
		settings, err := r.settings.Get()
		if err != nil {
			return err
		}
		applySettingsUpdate(settings, update)
		if err := r.settings.Update(settings); err != nil {
			return errors.Wrap(err, "error updating system settings")
		}
		fmt.Fprintln(a.Out, "System settings updated.")
		return a.printYaml(viewOfSettings(settings))
	})
}

// GetPipelineSla prints the default SLA of one pipeline.
func (a *App) GetPipelineSla(namespace string) error {
	return a.withRepositories(func(r *repositories) error {
		sla, err := r.settings.PipelineSla(namespace)
		if err != nil {
			return err
		}
		if sla == nil {
			fmt.Fprintf(a.Out, "Pipeline %s has no default SLA, the system default applies.\n", namespace)
			return nil
		}
		fmt.Fprintf(a.Out, "Pipeline %s default SLA: %d seconds\n", namespace, *sla)
		return nil
	})
}

// SetPipelineSla sets the default SLA jobs of this pipeline fall back to when
// they carry none of their own.
func (a *App) SetPipelineSla(namespace string, seconds int64) error {
	return a.withRepositories(func(r *repositories) error {
		if err := r.settings.SetPipelineSla(namespace, seconds); err != nil {
			return errors.Wrapf(err, "error setting SLA for pipeline %s", namespace)
		}
		fmt.Fprintf(a.Out, "Pipeline %s default SLA set to %d seconds.\n", namespace, seconds)
		return nil
	})
}

func viewOfSettings(settings *model.SystemSettings) settingsView {
	return settingsView{
		FairshareCpu:         settings.FairshareCpu,
		FairshareMemory:      settings.FairshareMemory,
		FairshareStorage:     settings.FairshareStorage,
		DeadlineWindow:       settings.DeadlineWindow,
		MaxSway:              settings.MaxSway,
		DwellSeconds:         settings.DwellSeconds,
		CacheLifetimeSeconds: settings.CacheLifetimeSeconds,
		RequiredAgentVersion: settings.RequiredAgentVersion,
	}
}

func applySettingsUpdate(settings *model.SystemSettings, update SettingsUpdate) {
	if update.FairshareCpu != nil {
		settings.FairshareCpu = *update.FairshareCpu
	}
	if update.FairshareMemory != nil {
		settings.FairshareMemory = *update.FairshareMemory
	}
	if update.FairshareStorage != nil {
		settings.FairshareStorage = *update.FairshareStorage
	}
	if update.DeadlineWindow != nil {
		settings.DeadlineWindow = *update.DeadlineWindow
	}
	if update.MaxSway != nil {
		settings.MaxSway = *update.MaxSway
	}
	if update.DwellSeconds != nil {
		settings.DwellSeconds = *update.DwellSeconds
	}
	if update.CacheLifetimeSeconds != nil {
		settings.CacheLifetimeSeconds = *update.CacheLifetimeSeconds
	}
	if update.RequiredAgentVersion != nil {
		settings.RequiredAgentVersion = *update.RequiredAgentVersion
	}
}
