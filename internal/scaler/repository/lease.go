package repository

import (
	"time"

	"github.com/go-redis/redis"
	"github.com/pkg/errors"
)

const leasePrefix = "Lease:"

func leaseKey(namespace string) string {
	return leasePrefix + namespace
}

const releaseLeaseScript = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
else
	return 0
end
`

type LeaseRepository interface {
	TryAcquire(namespace string, owner string, ttl time.Duration) (bool, error)
	Release(namespace string, owner string) error
}

// RedisLeaseRepository hands out per-namespace leases so that at most one
// scaler instance scans and dispatches a namespace at a time. Leases expire
// on their own, so a crashed holder only stalls a namespace for the TTL.
type RedisLeaseRepository struct {
	db redis.UniversalClient
}

func NewRedisLeaseRepository(db redis.UniversalClient) *RedisLeaseRepository {
	return &RedisLeaseRepository{db: db}
}

func (r *RedisLeaseRepository) TryAcquire(namespace string, owner string, ttl time.Duration) (bool, error) {
	acquired, err := r.db.SetNX(leaseKey(namespace), owner, ttl).Result()
	if err != nil {
		return false, errors.Wrapf(err, "failed to acquire lease for namespace %s", namespace)
	}
	return acquired, nil
}

// Release drops the lease only when still held by owner, so an expired lease
// that another instance picked up is never released from under it.
func (r *RedisLeaseRepository) Release(namespace string, owner string) error {
	if err := r.db.Eval(releaseLeaseScript, []string{leaseKey(namespace)}, owner).Err(); err != nil {
		return errors.Wrapf(err, "failed to release lease for namespace %s", namespace)
	}
	return nil
}
