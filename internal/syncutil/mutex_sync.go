//go:build !deadlock

// Package syncutil provides the mutex used for registry bookkeeping and the
// test simulators. The default build uses sync.Mutex; build with
// -tags=deadlock for github.com/sasha-s/go-deadlock.
package syncutil

import "sync"

// Mutex wraps sync.Mutex. Build with -tags=deadlock for deadlock detection.
//
//nolint:gocritic // Intentionally embedding sync.Mutex to expose its interface
type Mutex struct {
	sync.Mutex
}
