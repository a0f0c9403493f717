package health

import (
	"errors"
	"sync/atomic"
)

// StartupCompleteChecker reports unhealthy until MarkComplete is called,
// so load balancers do not route to an instance that is still wiring up.
type StartupCompleteChecker struct {
	complete atomic.Value
}

func NewStartupCompleteChecker() *StartupCompleteChecker {
	checker := &StartupCompleteChecker{}
	checker.complete.Store(false)
	return checker
}

func (c *StartupCompleteChecker) Check() error {
	if c.complete.Load() == true {
		return nil
	}
	return errors.New("startup not complete")
}

func (c *StartupCompleteChecker) MarkComplete() {
	c.complete.Store(true)
}
