// Package presence implements typing indicators and seen acknowledgements.
// Its types are not safe for concurrent use; callers drive them from one event loop.
package presence

import "time"

// Timer is the subset of *time.Timer used here.
type Timer interface {
	Stop() bool
}

// Clock schedules callbacks. Callbacks run on an arbitrary goroutine.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// RealClock is the wall-clock implementation.
var RealClock Clock = realClock{}

// Poster hands a closure to the event loop that owns presence state.
type Poster func(func()) bool
