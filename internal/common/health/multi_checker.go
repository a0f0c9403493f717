package health

import (
	"errors"
	"strings"
	"sync"
)

// MultiChecker combines checkers, reporting healthy only when all of them are.
type MultiChecker struct {
	mutex    sync.Mutex
	checkers []Checker
}

func NewMultiChecker(checkers ...Checker) *MultiChecker {
	return &MultiChecker{
		checkers: checkers,
	}
}

func (mc *MultiChecker) Check() error {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	var errorStrings []string
	for _, checker := range mc.checkers {
		if err := checker.Check(); err != nil {
			errorStrings = append(errorStrings, err.Error())
		}
	}

	if len(errorStrings) == 0 {
		return nil
	}
	return errors.New(strings.Join(errorStrings, "\n"))
}

func (mc *MultiChecker) Add(checker Checker) {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()
	mc.checkers = append(mc.checkers, checker)
}
