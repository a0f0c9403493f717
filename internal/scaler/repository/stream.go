package repository

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis"
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"

	"github.com/tidelineproject/tideline/internal/scaler/model"
)

const (
	deadlinesPrefix   = "Deadlines:"
	deadlineSeqPrefix = "DeadlineSeq:"
	deadlineIdsPrefix = "DeadlineIds:"
	namespacesKey     = "Namespaces"
)

func deadlinesKey(namespace string) string {
	return deadlinesPrefix + namespace
}

func deadlineSeqKey(namespace string) string {
	return deadlineSeqPrefix + namespace
}

func deadlineIdsKey(namespace string) string {
	return deadlineIdsPrefix + namespace
}

// deadlineScore is the sort key of a stream entry: whole unix seconds.
// Ordering within one second falls to the member's insertion sequence.
func deadlineScore(deadline time.Time) float64 {
	return float64(deadline.Unix())
}

func deadlineFromScore(score float64) time.Time {
	return time.Unix(int64(score), 0).UTC()
}

type DeadlineStreamRepository interface {
	Enqueue(job *model.Job) error
	PeekWindow(namespace string, limit int64) ([]model.DeadlineEntry, error)
	Page(namespace string, offset int64, limit int64) ([]model.DeadlineEntry, error)
	Remove(namespace string, jobId string) error
	RemoveEntry(namespace string, fragment model.DeadlineFragment) error
	Depth(namespace string) (int64, error)
	IdCount(namespace string) (int64, error)
	EarliestDeadline(namespace string) (time.Time, bool, error)
	Namespaces() ([]string, error)
}

// RedisDeadlineStreamRepository keeps one sorted set per namespace, ordered
// by deadline score and, within equal scores, by insertion sequence. Sorted
// set semantics make concurrent enqueues during a scan safe: an entry added
// mid-scan is simply not seen until the next windowed read.
type RedisDeadlineStreamRepository struct {
	db redis.UniversalClient
}

func NewRedisDeadlineStreamRepository(db redis.UniversalClient) *RedisDeadlineStreamRepository {
	return &RedisDeadlineStreamRepository{db: db}
}

// Enqueue inserts the job into its namespace's deadline stream and makes it
// claimable. The job object, stream entry and claim queue entry land in one
// transaction so a job is never visible in the stream without its object.
// Assigns job.Seq. Returns ErrDuplicateJob if the id is already streamed.
func (r *RedisDeadlineStreamRepository) Enqueue(job *model.Job) error {
	if job.Id == "" {
		return errors.New("cannot enqueue a job without an id")
	}
	if job.Deadline.IsZero() {
		return errors.Errorf("cannot enqueue job %s without a deadline", job.Id)
	}
	namespace := job.Namespace()

	added, err := r.db.SAdd(deadlineIdsKey(namespace), job.Id).Result()
	if err != nil {
		return errors.Wrapf(err, "failed to reserve id for job %s", job.Id)
	}
	if added == 0 {
		return &ErrDuplicateJob{JobId: job.Id, Namespace: namespace}
	}

	seq, err := r.db.Incr(deadlineSeqKey(namespace)).Result()
	if err != nil {
		return errors.Wrapf(err, "failed to allocate sequence for job %s", job.Id)
	}
	job.Seq = uint64(seq)

	member, err := model.NewDeadlineFragment(job).Member()
	if err != nil {
		return err
	}
	jobData, err := json.Marshal(job)
	if err != nil {
		return errors.WithStack(err)
	}
	score := deadlineScore(job.Deadline)

	pipe := r.db.TxPipeline()
	pipe.Set(jobObjectKey(job.Id), jobData, 0)
	pipe.ZAdd(deadlinesKey(namespace), redis.Z{Score: score, Member: member})
	pipe.ZAdd(claimCreatedKey(job.Stage), redis.Z{Score: score, Member: job.Id})
	pipe.SAdd(namespacesKey, namespace)
	if _, err := pipe.Exec(); err != nil {
		return errors.Wrapf(err, "failed to enqueue job %s into stream %s", job.Id, namespace)
	}
	return nil
}

// PeekWindow returns up to limit earliest-deadline entries without removing
// them. Cost is bounded by limit regardless of total stream depth; entries
// beyond the window stay invisible until earlier entries clear.
func (r *RedisDeadlineStreamRepository) PeekWindow(namespace string, limit int64) ([]model.DeadlineEntry, error) {
	return r.Page(namespace, 0, limit)
}

// Page reads one slice of the stream in deadline order, for full walks that
// must not hold the whole stream in memory at once.
func (r *RedisDeadlineStreamRepository) Page(namespace string, offset int64, limit int64) ([]model.DeadlineEntry, error) {
	if limit <= 0 {
		return nil, nil
	}
	zs, err := r.db.ZRangeWithScores(deadlinesKey(namespace), offset, offset+limit-1).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read deadline stream %s", namespace)
	}

	entries := make([]model.DeadlineEntry, 0, len(zs))
	for _, z := range zs {
		member := fmt.Sprintf("%v", z.Member)
		fragment, err := model.ParseDeadlineFragment(member)
		if err != nil {
			return nil, &ErrCorruptStream{Namespace: namespace, Member: member, Cause: err}
		}
		entries = append(entries, model.DeadlineEntry{
			Fragment: fragment,
			Deadline: deadlineFromScore(z.Score),
		})
	}
	return entries, nil
}

// Remove deletes the job's stream entry, typically on claim or deletion.
// Removing a job that is no longer streamed is a no-op.
func (r *RedisDeadlineStreamRepository) Remove(namespace string, jobId string) error {
	data, err := r.db.Get(jobObjectKey(jobId)).Result()
	if err == redis.Nil {
		return nil
	} else if err != nil {
		return errors.Wrapf(err, "failed to load job %s", jobId)
	}

	var job model.Job
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return errors.Wrapf(err, "failed to decode job %s", jobId)
	}
	return r.RemoveEntry(namespace, model.NewDeadlineFragment(&job))
}

// RemoveEntry deletes a stream entry by its fragment, used when the caller
// already holds the entry, for example when pruning a dangling one.
func (r *RedisDeadlineStreamRepository) RemoveEntry(namespace string, fragment model.DeadlineFragment) error {
	member, err := fragment.Member()
	if err != nil {
		return err
	}
	pipe := r.db.TxPipeline()
	pipe.ZRem(deadlinesKey(namespace), member)
	pipe.SRem(deadlineIdsKey(namespace), fragment.JobId)
	if _, err := pipe.Exec(); err != nil {
		return errors.Wrapf(err, "failed to remove job %s from stream %s", fragment.JobId, namespace)
	}
	return nil
}

func (r *RedisDeadlineStreamRepository) Depth(namespace string) (int64, error) {
	depth, err := r.db.ZCard(deadlinesKey(namespace)).Result()
	if err != nil {
		return 0, errors.Wrapf(err, "failed to read depth of stream %s", namespace)
	}
	return depth, nil
}

// IdCount reports how many job ids the duplicate guard tracks. It matches
// Depth unless the stream and its guard have diverged.
func (r *RedisDeadlineStreamRepository) IdCount(namespace string) (int64, error) {
	count, err := r.db.SCard(deadlineIdsKey(namespace)).Result()
	if err != nil {
		return 0, errors.Wrapf(err, "failed to count ids of stream %s", namespace)
	}
	return count, nil
}

// EarliestDeadline returns the deadline at the head of the stream. The bool
// is false when the stream is empty.
func (r *RedisDeadlineStreamRepository) EarliestDeadline(namespace string) (time.Time, bool, error) {
	zs, err := r.db.ZRangeWithScores(deadlinesKey(namespace), 0, 0).Result()
	if err != nil {
		return time.Time{}, false, errors.Wrapf(err, "failed to read head of stream %s", namespace)
	}
	if len(zs) == 0 {
		return time.Time{}, false, nil
	}
	return deadlineFromScore(zs[0].Score), true, nil
}

// Namespaces lists every namespace that has ever streamed a job, sorted for
// deterministic iteration.
func (r *RedisDeadlineStreamRepository) Namespaces() ([]string, error) {
	namespaces, err := r.db.SMembers(namespacesKey).Result()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list namespaces")
	}
	slices.Sort(namespaces)
	return namespaces, nil
}
