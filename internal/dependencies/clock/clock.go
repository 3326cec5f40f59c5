package clock

import "github.com/coder/quartz"

// Clock provides time operations and timers that can be mocked for testing
type Clock = quartz.Clock

// New creates a Clock backed by the system clock
func New() Clock {
	return quartz.NewReal()
}
