package checker

import (
	"time"

	"github.com/cnosuke/imgcheck/types"
)

// Observer receives instrumentation events from checks and runs.
type Observer interface {
	// ObserveResult is called once per network check with its total duration.
	ObserveResult(r types.CheckResult, d time.Duration)
	// ObserveRetry is called before each retry with the outcome that caused it.
	ObserveRetry(status types.Status, code int)
	// InFlight is called with +1 when a token is taken and -1 when it is returned.
	InFlight(delta int)
}

type nopObserver struct{}

func (nopObserver) ObserveResult(types.CheckResult, time.Duration) {}
func (nopObserver) ObserveRetry(types.Status, int)                 {}
func (nopObserver) InFlight(int)                                   {}
