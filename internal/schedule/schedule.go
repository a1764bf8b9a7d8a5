// Package schedule runs the desk's periodic activities.
package schedule

import (
	"errors"
	"time"
)

var ErrInvalidInterval = errors.New("interval must be positive")

type Runner interface {
	// Every registers fn to run each d after Start. Runs of one task never
	// overlap.
	Every(name string, d time.Duration, fn func()) error
	Start()
	// Stop prevents new runs and waits for running ones to finish.
	Stop()
}

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
