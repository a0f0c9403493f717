package service

import (
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/tidelineproject/tideline/internal/scaler/metrics"
	"github.com/tidelineproject/tideline/internal/scaler/model"
	"github.com/tidelineproject/tideline/internal/scaler/repository"
	"github.com/tidelineproject/tideline/internal/scaler/scheduling"
)

const scanPageSize = 1000

// ConsistencyScanner reconciles queued state against the settings currently
// in force. Settings are hot reloadable, so jobs that were admissible when
// enqueued can become impossible later, for example when an admin lowers the
// fairshare capacity below a queued request. Findings are flagged for admin
// review; the scanner never mutates anything.
type ConsistencyScanner struct {
	streams  repository.DeadlineStreamRepository
	jobs     repository.JobRepository
	settings repository.SettingsRepository
}

func NewConsistencyScanner(
	streams repository.DeadlineStreamRepository,
	jobs repository.JobRepository,
	settings repository.SettingsRepository,
) *ConsistencyScanner {
	return &ConsistencyScanner{
		streams:  streams,
		jobs:     jobs,
		settings: settings,
	}
}

// Scan walks every namespace's full stream in pages and returns the
// aggregated findings, nil when everything is consistent.
func (s *ConsistencyScanner) Scan() error {
	settings, err := s.settings.Get()
	if err != nil {
		return err
	}

	var mu sync.Mutex
	var result *multierror.Error
	if err := settings.Validate(); err != nil {
		result = multierror.Append(result, err)
	}

	namespaces, err := s.streams.Namespaces()
	if err != nil {
		return err
	}

	capacity := settings.FairsharePool()
	g := errgroup.Group{}
	g.SetLimit(4)
	for _, namespace := range namespaces {
		namespace := namespace
		g.Go(func() error {
			findings := s.scanNamespace(namespace, capacity)
			for range findings {
				metrics.RecordInconsistency(namespace)
			}
			if len(findings) > 0 {
				mu.Lock()
				result = multierror.Append(result, findings...)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return result.ErrorOrNil()
}

// Report runs a scan and logs the outcome, for use as a background task.
func (s *ConsistencyScanner) Report() {
	if err := s.Scan(); err != nil {
		log.Warnf("Consistency scan found problems: %s", err)
	}
}

func (s *ConsistencyScanner) scanNamespace(namespace string, capacity model.Resources) []error {
	findings := make([]error, 0)
	pool := scheduling.NewPool(capacity)
	var entryCount int64

	for offset := int64(0); ; offset += scanPageSize {
		entries, err := s.streams.Page(namespace, offset, scanPageSize)
		if err != nil {
			// Includes undecodable members; corruption ends this namespace's
			// scan but is still reported.
			findings = append(findings, err)
			return findings
		}
		if len(entries) == 0 {
			break
		}
		entryCount += int64(len(entries))

		ids := make([]string, 0, len(entries))
		for _, entry := range entries {
			ids = append(ids, entry.Fragment.JobId)
		}
		jobs, err := s.jobs.GetJobsByIds(ids)
		if err != nil {
			findings = append(findings, err)
			return findings
		}

		for i, entry := range entries {
			job := jobs[i]
			if job == nil {
				findings = append(findings, &repository.ErrConfigInconsistency{
					Namespace: namespace,
					JobId:     entry.Fragment.JobId,
					Detail:    "stream entry has no job object",
				})
				continue
			}
			if !pool.Fits(job.Resources) {
				findings = append(findings, &repository.ErrConfigInconsistency{
					Namespace: namespace,
					JobId:     job.Id,
					Detail:    fmt.Sprintf("resource request (%s) can never fit the loop capacity (%s)", job.Resources, capacity),
				})
			}
		}

		if int64(len(entries)) < scanPageSize {
			break
		}
	}

	knownIds, err := s.streams.IdCount(namespace)
	if err != nil {
		findings = append(findings, err)
		return findings
	}
	if knownIds != entryCount {
		findings = append(findings, &repository.ErrConfigInconsistency{
			Namespace: namespace,
			Detail:    fmt.Sprintf("duplicate guard tracks %d ids but the stream holds %d entries", knownIds, entryCount),
		})
	}
	return findings
}
