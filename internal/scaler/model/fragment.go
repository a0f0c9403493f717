package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// DeadlineFragment is the member stored in a deadline stream. Seq must stay
// the first serialized field: members sharing a score are ordered
// lexicographically by the backing store, so a fixed-width leading sequence
// keeps equal deadlines FIFO by insertion.
type DeadlineFragment struct {
	Seq      string `json:"seq"`
	User     string `json:"user"`
	Group    string `json:"group"`
	Pipeline string `json:"pipeline"`
	Stage    string `json:"stage"`
	Reaction string `json:"reaction"`
	JobId    string `json:"jobId"`
}

// FormatSeq renders an insertion sequence at fixed width so that string
// ordering matches numeric ordering.
func FormatSeq(seq uint64) string {
	return fmt.Sprintf("%020d", seq)
}

func NewDeadlineFragment(job *Job) DeadlineFragment {
	return DeadlineFragment{
		Seq:      FormatSeq(job.Seq),
		User:     job.User,
		Group:    job.Group,
		Pipeline: job.Pipeline,
		Stage:    job.Stage,
		Reaction: job.Reaction,
		JobId:    job.Id,
	}
}

// Member serializes the fragment for storage. Marshalling is deterministic,
// so the member can be rebuilt from a stored job to remove its entry.
func (f DeadlineFragment) Member() (string, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return "", errors.WithStack(err)
	}
	return string(data), nil
}

func ParseDeadlineFragment(member string) (DeadlineFragment, error) {
	var fragment DeadlineFragment
	if err := json.Unmarshal([]byte(member), &fragment); err != nil {
		return fragment, errors.Wrapf(err, "undecodable deadline stream member %q", member)
	}
	if fragment.JobId == "" {
		return fragment, errors.Errorf("deadline stream member %q has no job id", member)
	}
	return fragment, nil
}

func (f DeadlineFragment) Namespace() string {
	return Namespace(f.Group, f.Pipeline)
}

// DeadlineEntry is one stream entry as returned by a windowed read.
type DeadlineEntry struct {
	Fragment DeadlineFragment
	Deadline time.Time
}
