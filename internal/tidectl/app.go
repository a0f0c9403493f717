package tidectl

import (
	"io"
	"os"
	"time"

	"github.com/go-redis/redis"
	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v2"

	"github.com/tidelineproject/tideline/internal/scaler/repository"
	"github.com/tidelineproject/tideline/internal/scaler/scheduling"
	"github.com/tidelineproject/tideline/internal/scaler/service"
)

// Submission side defaults, matching the scaler's shipped configuration. The
// CLI has no access to the scaler's config file, so deadlines computed here
// can differ when a deployment overrides these.
const (
	defaultSla              = 168 * time.Hour
	defaultNewImageEstimate = 10 * time.Minute
	defaultSampleWindow     = 10000
	estimateCacheSize       = 128
)

// App allows tidectl commands to be unit tested: commands only interact with
// the store through app methods and write their output to Out.
type App struct {
	Params *Params
	// Out is used to write the output. Defaults to standard out, but can be
	// overridden in tests to make assertions on the application's output.
	Out io.Writer
}

// Params holds the user customizable parameters shared by every command.
type Params struct {
	Redis redis.UniversalOptions
}

func New() *App {
	return &App{
		Params: &Params{},
		Out:    os.Stdout,
	}
}

type repositories struct {
	streams  repository.DeadlineStreamRepository
	jobs     repository.JobRepository
	settings repository.SettingsRepository
	runtimes repository.RuntimeRepository
}

// withRepositories connects to the store, wires the repositories and runs
// action against them.
func (a *App) withRepositories(action func(r *repositories) error) error {
	db := redis.NewUniversalClient(&a.Params.Redis)
	defer db.Close()
	if err := db.Ping().Err(); err != nil {
		return errors.Wrapf(err, "failed to reach redis at %v", a.Params.Redis.Addrs)
	}

	streams := repository.NewRedisDeadlineStreamRepository(db)
	settings := repository.NewRedisSettingsRepository(db)
	runtimes := repository.NewRedisRuntimeRepository(db, defaultSampleWindow)
	estimator, err := service.NewEstimator(runtimes, estimateCacheSize, defaultNewImageEstimate)
	if err != nil {
		return err
	}
	calculator := scheduling.NewCalculator(estimator, settings, int64(defaultSla/time.Second))

	return action(&repositories{
		streams:  streams,
		jobs:     repository.NewRedisJobRepository(db, streams, calculator, settings),
		settings: settings,
		runtimes: runtimes,
	})
}

func (a *App) printYaml(v interface{}) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return errors.WithStack(err)
	}
	_, err = a.Out.Write(data)
	return errors.WithStack(err)
}
