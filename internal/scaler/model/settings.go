package model

import (
	"time"

	"github.com/pkg/errors"
)

// SystemSettings are the hot reloadable knobs of the scheduler. They live in
// the backing store and take effect within CacheLifetime without a restart.
type SystemSettings struct {
	// FairshareCpu, FairshareMemory and FairshareStorage size the resource
	// pool one scale loop may hand out. A zero value leaves that dimension
	// unconstrained.
	FairshareCpu     int64 `json:"fairshareCpu"`
	FairshareMemory  int64 `json:"fairshareMemory"`
	FairshareStorage int64 `json:"fairshareStorage"`

	// DeadlineWindow caps how many stream entries one loop may look at.
	DeadlineWindow int64 `json:"deadlineWindow"`

	// MaxSway caps how many jobs one loop may dispatch in total.
	MaxSway int64 `json:"maxSway"`

	// DwellSeconds is the sleep between scale loops.
	DwellSeconds int64 `json:"dwell"`

	// CacheLifetimeSeconds bounds how stale cached settings and runtime
	// estimates may get.
	CacheLifetimeSeconds int64 `json:"cacheLifetime"`

	// RequiredAgentVersion gates job claims to agents on a matching
	// MAJOR.MINOR version. Empty disables the gate.
	RequiredAgentVersion string `json:"requiredAgentVersion,omitempty"`
}

func DefaultSystemSettings() *SystemSettings {
	return &SystemSettings{
		FairshareCpu:         16000,
		FairshareMemory:      64 << 30,
		FairshareStorage:     0,
		DeadlineWindow:       100000,
		MaxSway:              50,
		DwellSeconds:         5,
		CacheLifetimeSeconds: 600,
	}
}

func (s *SystemSettings) FairsharePool() Resources {
	return Resources{
		CpuMillis:    s.FairshareCpu,
		MemoryBytes:  s.FairshareMemory,
		StorageBytes: s.FairshareStorage,
	}
}

func (s *SystemSettings) Dwell() time.Duration {
	return time.Duration(s.DwellSeconds) * time.Second
}

func (s *SystemSettings) CacheLifetime() time.Duration {
	return time.Duration(s.CacheLifetimeSeconds) * time.Second
}

func (s *SystemSettings) Validate() error {
	if s.DeadlineWindow <= 0 {
		return errors.Errorf("deadlineWindow must be positive: is %d", s.DeadlineWindow)
	}
	if s.MaxSway <= 0 {
		return errors.Errorf("maxSway must be positive: is %d", s.MaxSway)
	}
	if s.DwellSeconds <= 0 {
		return errors.Errorf("dwell must be positive: is %d", s.DwellSeconds)
	}
	if s.CacheLifetimeSeconds <= 0 {
		return errors.Errorf("cacheLifetime must be positive: is %d", s.CacheLifetimeSeconds)
	}
	if s.FairshareCpu < 0 || s.FairshareMemory < 0 || s.FairshareStorage < 0 {
		return errors.New("fairshare pool sizes must not be negative")
	}
	return nil
}
