package scheduling

import (
	"github.com/tidelineproject/tideline/internal/scaler/model"
)

// Pool tracks consumption against a resource limit. A zero limit on a
// dimension leaves that dimension unconstrained.
type Pool struct {
	limit model.Resources
	used  model.Resources
}

func NewPool(limit model.Resources) *Pool {
	return &Pool{limit: limit}
}

func (p *Pool) Limit() model.Resources {
	return p.limit
}

// Fits reports whether the request still fits next to what has already been
// consumed.
func (p *Pool) Fits(request model.Resources) bool {
	if p.limit.CpuMillis > 0 && p.used.CpuMillis+request.CpuMillis > p.limit.CpuMillis {
		return false
	}
	if p.limit.MemoryBytes > 0 && p.used.MemoryBytes+request.MemoryBytes > p.limit.MemoryBytes {
		return false
	}
	if p.limit.StorageBytes > 0 && p.used.StorageBytes+request.StorageBytes > p.limit.StorageBytes {
		return false
	}
	return true
}

func (p *Pool) Consume(request model.Resources) {
	p.used = p.used.Add(request)
}

func (p *Pool) Release(request model.Resources) {
	p.used = p.used.Sub(request)
}
