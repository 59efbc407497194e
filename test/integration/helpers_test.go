package integration

import (
	"testing"
	"time"
)

// waitForCondition polls cond every 5ms until it reports true or a 2s
// budget elapses, failing the test in the latter case. Used in place of
// a fixed sleep for the handful of scenarios here that drive a
// goroutine-based loop (pkg/edge.Runtime, pkg/scanner.Scanner) from
// outside their package.
func waitForCondition(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}
