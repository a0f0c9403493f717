package tidectl

import (
	"time"
)

type namespaceStats struct {
	Namespace        string `yaml:"namespace"`
	Depth            int64  `yaml:"depth"`
	EarliestDeadline string `yaml:"earliestDeadline,omitempty"`

	// SlackSeconds is how long until the earliest queued deadline, negative
	// once overdue. Omitted for empty namespaces.
	SlackSeconds *int64 `yaml:"slackSeconds,omitempty"`
}

// Stats prints queue depth and deadline slack per namespace.
func (a *App) Stats() error {
	return a.withRepositories(func(r *repositories) error {
		namespaces, err := r.streams.Namespaces()
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		stats := make([]namespaceStats, 0, len(namespaces))
		for _, namespace := range namespaces {
			depth, err := r.streams.Depth(namespace)
			if err != nil {
				return err
			}
			entry := namespaceStats{Namespace: namespace, Depth: depth}

			earliest, ok, err := r.streams.EarliestDeadline(namespace)
			if err != nil {
				return err
			}
			if ok {
				slack := int64(earliest.Sub(now) / time.Second)
				entry.EarliestDeadline = earliest.Format(time.RFC3339)
				entry.SlackSeconds = &slack
			}
			stats = append(stats, entry)
		}
		return a.printYaml(stats)
	})
}
