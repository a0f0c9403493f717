package repository

import (
	"encoding/json"
	"strconv"

	"github.com/go-redis/redis"
	gocache "github.com/patrickmn/go-cache"
	"github.com/pkg/errors"

	"github.com/tidelineproject/tideline/internal/scaler/model"
)

const (
	systemSettingsKey  = "SystemSettings"
	pipelineSlasKey    = "PipelineSlas"
	settingsCacheEntry = "settings"
)

// SlaLowerBound and SlaUpperBound clamp every resolved SLA; explicit SLAs
// outside the range are rejected at enqueue.
const (
	SlaLowerBound int64 = 1
	SlaUpperBound int64 = 3154000000
)

type SettingsRepository interface {
	Get() (*model.SystemSettings, error)
	Update(settings *model.SystemSettings) error
	PipelineSla(namespace string) (*int64, error)
	SetPipelineSla(namespace string, seconds int64) error
}

// RedisSettingsRepository stores the hot reloadable system settings and the
// per pipeline default SLAs. A missing settings key yields compiled defaults
// so a fresh deployment works without seeding.
type RedisSettingsRepository struct {
	db redis.UniversalClient
}

func NewRedisSettingsRepository(db redis.UniversalClient) *RedisSettingsRepository {
	return &RedisSettingsRepository{db: db}
}

func (r *RedisSettingsRepository) Get() (*model.SystemSettings, error) {
	data, err := r.db.Get(systemSettingsKey).Result()
	if err == redis.Nil {
		return model.DefaultSystemSettings(), nil
	} else if err != nil {
		return nil, errors.Wrap(err, "failed to load system settings")
	}

	var settings model.SystemSettings
	if err := json.Unmarshal([]byte(data), &settings); err != nil {
		return nil, errors.Wrap(err, "failed to decode system settings")
	}
	return &settings, nil
}

func (r *RedisSettingsRepository) Update(settings *model.SystemSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(settings)
	if err != nil {
		return errors.WithStack(err)
	}
	if err := r.db.Set(systemSettingsKey, data, 0).Err(); err != nil {
		return errors.Wrap(err, "failed to store system settings")
	}
	return nil
}

// PipelineSla returns the pipeline's default SLA in seconds, or nil when the
// pipeline has none configured.
func (r *RedisSettingsRepository) PipelineSla(namespace string) (*int64, error) {
	value, err := r.db.HGet(pipelineSlasKey, namespace).Result()
	if err == redis.Nil {
		return nil, nil
	} else if err != nil {
		return nil, errors.Wrapf(err, "failed to load pipeline sla for %s", namespace)
	}

	seconds, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return nil, errors.Wrapf(err, "pipeline sla for %s is not a number: %q", namespace, value)
	}
	return &seconds, nil
}

func (r *RedisSettingsRepository) SetPipelineSla(namespace string, seconds int64) error {
	if seconds < SlaLowerBound || seconds > SlaUpperBound {
		return errors.Errorf("pipeline sla must be within [%d, %d] seconds: is %d", SlaLowerBound, SlaUpperBound, seconds)
	}
	if err := r.db.HSet(pipelineSlasKey, namespace, strconv.FormatInt(seconds, 10)).Err(); err != nil {
		return errors.Wrapf(err, "failed to store pipeline sla for %s", namespace)
	}
	return nil
}

// CachedSettingsRepository serves settings from an in-process cache whose TTL
// is the settings' own cache lifetime, so updates made elsewhere become
// visible without a restart within that lifetime.
type CachedSettingsRepository struct {
	inner SettingsRepository
	cache *gocache.Cache
}

func NewCachedSettingsRepository(inner SettingsRepository) *CachedSettingsRepository {
	return &CachedSettingsRepository{
		inner: inner,
		cache: gocache.New(gocache.NoExpiration, 2*model.DefaultSystemSettings().CacheLifetime()),
	}
}

func (r *CachedSettingsRepository) Get() (*model.SystemSettings, error) {
	if cached, ok := r.cache.Get(settingsCacheEntry); ok {
		return cached.(*model.SystemSettings), nil
	}
	settings, err := r.inner.Get()
	if err != nil {
		return nil, err
	}
	r.cache.Set(settingsCacheEntry, settings, settings.CacheLifetime())
	return settings, nil
}

// Update writes through and refreshes the cache, so the updating process
// observes its own change immediately.
func (r *CachedSettingsRepository) Update(settings *model.SystemSettings) error {
	if err := r.inner.Update(settings); err != nil {
		return err
	}
	r.cache.Set(settingsCacheEntry, settings, settings.CacheLifetime())
	return nil
}

func (r *CachedSettingsRepository) PipelineSla(namespace string) (*int64, error) {
	return r.inner.PipelineSla(namespace)
}

func (r *CachedSettingsRepository) SetPipelineSla(namespace string, seconds int64) error {
	return r.inner.SetPipelineSla(namespace, seconds)
}
