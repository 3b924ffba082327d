package state

import (
	"fmt"
	"time"

	"github.com/VighneshNilajakar/HOTPIN-sub000/internal/fault"
)

// HardwareLock serializes ownership of the shared camera/codec hardware.
// Whoever holds it may initialize or deinitialize drivers; nobody else may
// touch them. Acquire is deadline-bounded so a wedged holder surfaces as a
// timeout instead of a silent hang.
type HardwareLock struct {
	sem chan struct{}
}

// NewHardwareLock creates an unheld hardware lock.
func NewHardwareLock() *HardwareLock {
	return &HardwareLock{sem: make(chan struct{}, 1)}
}

// Acquire takes the lock, waiting at most timeout.
func (l *HardwareLock) Acquire(timeout time.Duration) error {
	select {
	case l.sem <- struct{}{}:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("%w: hardware lock not acquired within %v", fault.ErrTimeout, timeout)
	}
}

// Release returns the lock. Releasing an unheld lock panics; that is a
// programming error, not a runtime condition.
func (l *HardwareLock) Release() {
	select {
	case <-l.sem:
	default:
		panic("state: release of unheld hardware lock")
	}
}
