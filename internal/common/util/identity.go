package util

import (
	"math/rand"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid"
	"github.com/renstrom/shortuuid"
)

var (
	entropy      = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
	entropyMutex sync.Mutex
)

// NewULID returns a lowercase ULID, used as job id. ULIDs sort by creation
// time which keeps listings of jobs roughly chronological.
func NewULID() string {
	entropyMutex.Lock()
	defer entropyMutex.Unlock()
	return strings.ToLower(ulid.MustNew(ulid.Now(), entropy).String())
}

// NewReactionId returns a random uuid, used to group the jobs of one
// pipeline execution.
func NewReactionId() string {
	return uuid.New().String()
}

// NewOwnerToken returns a token identifying this process instance, used as
// the owner value of namespace leases.
func NewOwnerToken() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return host + "-" + shortuuid.New()
}
