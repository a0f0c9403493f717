package scheduling

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tidelineproject/tideline/internal/scaler/model"
)

func TestPool_FitsUntilExhausted(t *testing.T) {
	pool := NewPool(model.Resources{CpuMillis: 2000, MemoryBytes: 4 << 30})

	request := model.Resources{CpuMillis: 1000, MemoryBytes: 1 << 30}
	assert.True(t, pool.Fits(request))
	pool.Consume(request)
	assert.True(t, pool.Fits(request))
	pool.Consume(request)

	// Cpu is exhausted even though memory is not.
	assert.False(t, pool.Fits(request))
	assert.True(t, pool.Fits(model.Resources{MemoryBytes: 2 << 30}))
}

func TestPool_ReleaseReturnsCapacity(t *testing.T) {
	pool := NewPool(model.Resources{CpuMillis: 1000})
	request := model.Resources{CpuMillis: 1000}

	pool.Consume(request)
	assert.False(t, pool.Fits(request))
	pool.Release(request)
	assert.True(t, pool.Fits(request))
}

func TestPool_ZeroLimitIsUnconstrained(t *testing.T) {
	pool := NewPool(model.Resources{CpuMillis: 1000})

	// No memory or storage limit: any amount fits.
	huge := model.Resources{MemoryBytes: 1 << 50, StorageBytes: 1 << 50}
	assert.True(t, pool.Fits(huge))
	pool.Consume(huge)
	assert.True(t, pool.Fits(huge))
}

func TestPool_OversizedRequestNeverFits(t *testing.T) {
	pool := NewPool(model.Resources{CpuMillis: 1000})
	assert.False(t, pool.Fits(model.Resources{CpuMillis: 1001}))
}
