package model

import (
	"fmt"

	"k8s.io/apimachinery/pkg/api/resource"
)

// Resources describes the compute a job asks for. Cpu is in millicores,
// memory and storage in bytes, matching how the backing settings store them.
type Resources struct {
	CpuMillis    int64 `json:"cpu"`
	MemoryBytes  int64 `json:"memory"`
	StorageBytes int64 `json:"storage"`
}

func (r Resources) Add(other Resources) Resources {
	return Resources{
		CpuMillis:    r.CpuMillis + other.CpuMillis,
		MemoryBytes:  r.MemoryBytes + other.MemoryBytes,
		StorageBytes: r.StorageBytes + other.StorageBytes,
	}
}

func (r Resources) Sub(other Resources) Resources {
	return Resources{
		CpuMillis:    r.CpuMillis - other.CpuMillis,
		MemoryBytes:  r.MemoryBytes - other.MemoryBytes,
		StorageBytes: r.StorageBytes - other.StorageBytes,
	}
}

// Div splits the resources into n equal shares, rounding down.
func (r Resources) Div(n int64) Resources {
	if n <= 0 {
		return r
	}
	return Resources{
		CpuMillis:    r.CpuMillis / n,
		MemoryBytes:  r.MemoryBytes / n,
		StorageBytes: r.StorageBytes / n,
	}
}

func (r Resources) IsZero() bool {
	return r.CpuMillis == 0 && r.MemoryBytes == 0 && r.StorageBytes == 0
}

func (r Resources) String() string {
	return fmt.Sprintf("cpu: %dm, memory: %d, storage: %d", r.CpuMillis, r.MemoryBytes, r.StorageBytes)
}

// ResourcesFromQuantities converts parsed config quantities into the internal
// integer representation.
func ResourcesFromQuantities(cpu resource.Quantity, memory resource.Quantity, storage resource.Quantity) Resources {
	return Resources{
		CpuMillis:    cpu.MilliValue(),
		MemoryBytes:  memory.Value(),
		StorageBytes: storage.Value(),
	}
}
