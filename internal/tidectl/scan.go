package tidectl

import (
	"fmt"

	"github.com/tidelineproject/tideline/internal/scaler/service"
)

// Scan checks every queued job against the system settings in force and
// reports anything that can no longer be scheduled.
func (a *App) Scan() error {
	return a.withRepositories(func(r *repositories) error {
		scanner := service.NewConsistencyScanner(r.streams, r.jobs, r.settings)
		if err := scanner.Scan(); err != nil {
			return err
		}
		fmt.Fprintln(a.Out, "No inconsistencies found.")
		return nil
	})
}
