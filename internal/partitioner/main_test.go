package partitioner

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain leak-checks every test in this package: the partitioner spawns
// real worker goroutines (candidate.Semaphore-bounded) per wave, and a
// leaked one would otherwise go unnoticed since Run returns as soon as its
// own WaitGroup drains.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
