package main

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// process mirrors the teacher's internal/process package (not present in the
// retrieved sources for this repo): a single signal channel, set up once,
// with cleanup handlers run on the way out. Rebuilt here from the observed
// call pattern in cmd/clicker's serve/main commands rather than adapted from
// source, since that package's own .go files were never shipped in the
// example pack.
var (
	signalOnce sync.Once
	sigCh      chan os.Signal

	cleanupMu sync.Mutex
	cleanups  []func()
)

// SetupSignalHandler arms the process-wide SIGINT/SIGTERM channel. Safe to
// call more than once; only the first call takes effect.
func SetupSignalHandler() {
	signalOnce.Do(func() {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	})
}

// WaitForSignal blocks until SIGINT/SIGTERM arrives.
func WaitForSignal() {
	SetupSignalHandler()
	<-sigCh
}

// WithCleanup runs fn, then runs every handler registered with OnCleanup,
// both when fn returns and when a panic unwinds out of it. Named for parity
// with the teacher's process.WithCleanup(func(){ ... }) wrapper around a
// command's Run body.
func WithCleanup(fn func()) {
	defer runCleanups()
	fn()
}

// OnCleanup registers a handler invoked by runCleanups.
func OnCleanup(fn func()) {
	cleanupMu.Lock()
	defer cleanupMu.Unlock()
	cleanups = append(cleanups, fn)
}

func runCleanups() {
	cleanupMu.Lock()
	handlers := append([]func(){}, cleanups...)
	cleanupMu.Unlock()
	for _, h := range handlers {
		h()
	}
}
