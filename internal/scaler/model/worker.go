package model

// ImageSpec tells a backend what to run for a job's stage.
type ImageSpec struct {
	Image      string `json:"image"`
	PullPolicy string `json:"pullPolicy,omitempty"`
}

// WorkerHandle identifies a worker spawned by a backend.
type WorkerHandle struct {
	Name    string `json:"name"`
	Backend string `json:"backend"`
	Node    string `json:"node,omitempty"`
}
