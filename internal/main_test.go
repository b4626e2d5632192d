//go:build unix && !e2e

package internal

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain leak-checks the integration suite: runPipeline drives a real
// scanner/partitioner worker pool per test, and a leaked goroutine from
// either would otherwise go unnoticed once Run returns.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
