package scheduling

import (
	"math"
	"time"

	"github.com/pkg/errors"

	"github.com/tidelineproject/tideline/internal/scaler/model"
	"github.com/tidelineproject/tideline/internal/scaler/repository"
)

// EstimateSource supplies the current runtime estimate for an image. It never
// fails: images with no history get the configured conservative default.
type EstimateSource interface {
	Estimate(image string) time.Duration
}

// PipelineSlaSource supplies the per pipeline default SLA, nil when the
// pipeline has none configured.
type PipelineSlaSource interface {
	PipelineSla(namespace string) (*int64, error)
}

// Calculator resolves the layered SLA policy into a deadline basis. The
// layers, most specific first: the job's explicit SLA, the pipeline default,
// the system default. A single scalar deadline derived from the basis is the
// stream's sort key; anything richer would need rescoring every queued job on
// every loop.
type Calculator struct {
	estimates  EstimateSource
	pipelines  PipelineSlaSource
	defaultSla int64
}

func NewCalculator(estimates EstimateSource, pipelines PipelineSlaSource, defaultSla int64) *Calculator {
	return &Calculator{
		estimates:  estimates,
		pipelines:  pipelines,
		defaultSla: defaultSla,
	}
}

// Basis resolves the SLA layering for one job. The returned basis carries
// everything needed to re-derive the deadline deterministically. An SLA set
// by a submitter or pipeline admin is taken at face value; only jobs that
// fell through to the system default get pulled in to the image's estimated
// runtime, so fresh defaulted work on a fast image is not stuck behind a week
// long deadline.
func (c *Calculator) Basis(group string, pipeline string, stage string, explicitSla *int64) (model.DeadlineBasis, error) {
	estimate := c.estimates.Estimate(stage)
	bound := int64(math.Ceil(estimate.Seconds()))
	if bound < 1 {
		bound = 1
	}

	if explicitSla != nil {
		if *explicitSla < repository.SlaLowerBound || *explicitSla > repository.SlaUpperBound {
			return model.DeadlineBasis{}, errors.Errorf(
				"sla must be within [%d, %d] seconds: is %d", repository.SlaLowerBound, repository.SlaUpperBound, *explicitSla)
		}
		return model.DeadlineBasis{ResolvedSla: *explicitSla, EstimateBound: bound, Explicit: true}, nil
	}

	pipelineSla, err := c.pipelines.PipelineSla(model.Namespace(group, pipeline))
	if err != nil {
		return model.DeadlineBasis{}, err
	}
	if pipelineSla != nil {
		return model.DeadlineBasis{ResolvedSla: *pipelineSla, EstimateBound: bound, Explicit: true}, nil
	}
	return model.DeadlineBasis{ResolvedSla: c.defaultSla, EstimateBound: bound, Explicit: false}, nil
}
