package scheduling

import (
	"github.com/tidelineproject/tideline/internal/scaler/model"
)

// Candidate is one windowed stream entry paired with its loaded job.
type Candidate struct {
	Entry model.DeadlineEntry
	Job   *model.Job
}

// Ledger is the loop scoped fairshare accounting. It is built fresh each
// scale loop from that loop's capacity and the users with pending work, and
// thrown away afterwards; nothing about fairness survives between loops.
//
// Each user's share is an equal split of the loop capacity. A user has quota
// while their charged usage is below their share on every limited dimension;
// charging is not capped at the share, so usage only ever grows and a user
// who goes over stays over for the rest of the loop.
type Ledger struct {
	share model.Resources
	used  map[string]model.Resources
}

func NewLedger(capacity model.Resources, users int64) *Ledger {
	return &Ledger{
		share: capacity.Div(users),
		used:  map[string]model.Resources{},
	}
}

// HasQuota reports whether the user is still under their share. Dimensions
// whose share is zero (unconstrained, or split finer than one unit) are not
// costed.
func (l *Ledger) HasQuota(user string) bool {
	used := l.used[user]
	if l.share.CpuMillis > 0 && used.CpuMillis >= l.share.CpuMillis {
		return false
	}
	if l.share.MemoryBytes > 0 && used.MemoryBytes >= l.share.MemoryBytes {
		return false
	}
	if l.share.StorageBytes > 0 && used.StorageBytes >= l.share.StorageBytes {
		return false
	}
	return true
}

func (l *Ledger) Charge(user string, request model.Resources) {
	l.used[user] = l.used[user].Add(request)
}

// Selection is the outcome of one fairshare pass over a candidate window.
type Selection struct {
	Admitted []Candidate

	// SkippedQuota and SkippedPool count candidates left queued because
	// their user was over share or the loop pool was exhausted. Skipped
	// candidates stay in their streams and only get more urgent.
	SkippedQuota int
	SkippedPool  int

	// Relaxed is set when the per user cap was lifted because nobody under
	// quota had pending work left.
	Relaxed bool
}

// Select walks the candidates in deadline order and admits jobs while the
// owning user has quota, the pool has room and fewer than maxSway jobs are
// admitted. Balancing is across users, never across pipelines or images.
//
// If the scan covers the whole window without filling maxSway, every
// remaining candidate belongs to an over quota user, so holding the cap
// would idle capacity no one else wants: the cap is relaxed and the skipped
// candidates are admitted in deadline order while the pool lasts.
func Select(candidates []Candidate, ledger *Ledger, pool *Pool, maxSway int64) Selection {
	var selection Selection
	var overQuota []Candidate

	for _, candidate := range candidates {
		if int64(len(selection.Admitted)) >= maxSway {
			break
		}
		if !ledger.HasQuota(candidate.Job.User) {
			overQuota = append(overQuota, candidate)
			continue
		}
		if !pool.Fits(candidate.Job.Resources) {
			selection.SkippedPool++
			continue
		}
		ledger.Charge(candidate.Job.User, candidate.Job.Resources)
		pool.Consume(candidate.Job.Resources)
		selection.Admitted = append(selection.Admitted, candidate)
	}

	if int64(len(selection.Admitted)) >= maxSway || len(overQuota) == 0 {
		selection.SkippedQuota = len(overQuota)
		return selection
	}

	for _, candidate := range overQuota {
		if int64(len(selection.Admitted)) >= maxSway {
			selection.SkippedQuota++
			continue
		}
		if !pool.Fits(candidate.Job.Resources) {
			selection.SkippedPool++
			continue
		}
		selection.Relaxed = true
		ledger.Charge(candidate.Job.User, candidate.Job.Resources)
		pool.Consume(candidate.Job.Resources)
		selection.Admitted = append(selection.Admitted, candidate)
	}
	return selection
}
