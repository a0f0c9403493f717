package scheduling

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidelineproject/tideline/internal/scaler/model"
	"github.com/tidelineproject/tideline/internal/scaler/repository"
)

func TestBasis_ExplicitSlaIsTakenAtFaceValue(t *testing.T) {
	calculator := newTestCalculator(300*time.Second, nil)

	basis, err := calculator.Basis("corp", "triage", "unpack", ptr(86400))
	require.NoError(t, err)
	assert.Equal(t, model.DeadlineBasis{ResolvedSla: 86400, EstimateBound: 300, Explicit: true}, basis)

	created := time.Date(2023, 4, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, created.Add(86400*time.Second), basis.Deadline(created))
}

func TestBasis_ExplicitSlaOutOfBoundsIsRejected(t *testing.T) {
	calculator := newTestCalculator(300*time.Second, nil)

	_, err := calculator.Basis("corp", "triage", "unpack", ptr(0))
	assert.Error(t, err)

	_, err = calculator.Basis("corp", "triage", "unpack", ptr(repository.SlaUpperBound+1))
	assert.Error(t, err)

	_, err = calculator.Basis("corp", "triage", "unpack", ptr(repository.SlaLowerBound))
	assert.NoError(t, err)
}

func TestBasis_PipelineDefaultBeatsSystemDefault(t *testing.T) {
	calculator := newTestCalculator(300*time.Second, map[string]int64{"corp:triage": 7200})

	basis, err := calculator.Basis("corp", "triage", "unpack", nil)
	require.NoError(t, err)
	assert.Equal(t, model.DeadlineBasis{ResolvedSla: 7200, EstimateBound: 300, Explicit: true}, basis)

	// Another pipeline falls through to the system default.
	basis, err = calculator.Basis("corp", "scan", "unpack", nil)
	require.NoError(t, err)
	assert.Equal(t, model.DeadlineBasis{ResolvedSla: 604800, EstimateBound: 300, Explicit: false}, basis)
}

func TestBasis_DefaultedSlaIsBoundedByEstimate(t *testing.T) {
	calculator := newTestCalculator(300*time.Second, nil)

	basis, err := calculator.Basis("corp", "triage", "unpack", nil)
	require.NoError(t, err)

	created := time.Date(2023, 4, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, created.Add(300*time.Second), basis.Deadline(created),
		"a defaulted week long sla is pulled in to the image estimate")
}

func TestBasis_SlowImageKeepsTheDefaultSla(t *testing.T) {
	calculator := newTestCalculator(14*24*time.Hour, nil)

	basis, err := calculator.Basis("corp", "triage", "unpack", nil)
	require.NoError(t, err)

	created := time.Date(2023, 4, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, created.Add(604800*time.Second), basis.Deadline(created))
}

func TestBasis_EstimateBoundRoundsUpAndNeverHitsZero(t *testing.T) {
	calculator := newTestCalculator(1500*time.Millisecond, nil)
	basis, err := calculator.Basis("corp", "triage", "unpack", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), basis.EstimateBound)

	calculator = newTestCalculator(0, nil)
	basis, err = calculator.Basis("corp", "triage", "unpack", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), basis.EstimateBound)
}

type fixedEstimates struct {
	estimate time.Duration
}

func (f *fixedEstimates) Estimate(image string) time.Duration {
	return f.estimate
}

type mapSlas map[string]int64

func (m mapSlas) PipelineSla(namespace string) (*int64, error) {
	if seconds, ok := m[namespace]; ok {
		return &seconds, nil
	}
	return nil, nil
}

func newTestCalculator(estimate time.Duration, slas map[string]int64) *Calculator {
	return NewCalculator(&fixedEstimates{estimate: estimate}, mapSlas(slas), 604800)
}

func ptr(v int64) *int64 {
	return &v
}
