package transport

import "fmt"

// DefaultFailureThreshold is the number of consecutive controller failures
// tolerated before the transport is torn down and re-initialized.
const DefaultFailureThreshold = 3

// FailureMonitor counts consecutive controller failures. Any success
// resets the count; crossing the threshold signals that the controller is
// wedged and only a full teardown/reinit will recover it.
type FailureMonitor struct {
	threshold int
	failures  int
}

// NewFailureMonitor creates a monitor. A threshold of 0 or less uses
// DefaultFailureThreshold.
func NewFailureMonitor(threshold int) *FailureMonitor {
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	return &FailureMonitor{threshold: threshold}
}

// Failure records one failure and reports whether the threshold has been
// reached.
func (m *FailureMonitor) Failure() bool {
	m.failures++
	return m.failures >= m.threshold
}

// Success resets the count.
func (m *FailureMonitor) Success() {
	m.failures = 0
}

// Failures returns the current consecutive-failure count.
func (m *FailureMonitor) Failures() int { return m.failures }

// Reinitialize closes the wedged transport and opens a fresh one via the
// factory. The old transport's close error is ignored: a wedged controller
// often cannot even close cleanly.
func Reinitialize(old Transport, open func() (Transport, error)) (Transport, error) {
	if old != nil {
		_ = old.Close()
	}
	t, err := open()
	if err != nil {
		return nil, fmt.Errorf("reinitialize transport: %w", err)
	}
	return t, nil
}
