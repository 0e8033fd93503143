//go:build deadlock

// Package syncutil provides the mutex used for registry bookkeeping and the
// test simulators. Building with -tags=deadlock swaps in go-deadlock so lock
// ordering problems surface in tests.
package syncutil

import deadlock "github.com/sasha-s/go-deadlock"

// Mutex wraps deadlock.Mutex for deadlock detection.
type Mutex struct {
	deadlock.Mutex
}
