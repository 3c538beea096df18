package retry

import "time"

// Backoff yields the pause taken before a 1-based attempt. Attempt 1 is
// never delayed by the executor. Implementations must be deterministic.
type Backoff interface {
	Delay(attempt int) time.Duration
}

// Linear waits (attempt-1)*Step: 0, Step, 2*Step, ...
type Linear struct {
	Step time.Duration
}

// Delay implements Backoff.
func (l Linear) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	return time.Duration(attempt-1) * l.Step
}

// Fixed waits Interval before every attempt after the first.
type Fixed struct {
	Interval time.Duration
}

// Delay implements Backoff.
func (f Fixed) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	return f.Interval
}

// Schedule lists the pause before each attempt, starting with attempt 1.
// The last entry repeats for attempts beyond the list.
type Schedule []time.Duration

// Delay implements Backoff.
func (s Schedule) Delay(attempt int) time.Duration {
	if attempt <= 1 || len(s) == 0 {
		return 0
	}
	if attempt > len(s) {
		return s[len(s)-1]
	}
	return s[attempt-1]
}

// BackoffFunc adapts a function to Backoff.
type BackoffFunc func(attempt int) time.Duration

// Delay implements Backoff.
func (f BackoffFunc) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	return f(attempt)
}

// Delays returns the pauses taken before attempts 1..n.
func Delays(b Backoff, n int) []time.Duration {
	out := make([]time.Duration, n)
	for i := range out {
		out[i] = b.Delay(i + 1)
	}
	return out
}
