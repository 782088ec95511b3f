// Copyright © 2014 Lawrence E. Bakst. All rights reserved.

// Package siginfo runs a function when the user asks for progress, ^T on BSD
// terminals or kill -USR1 elsewhere.
package siginfo

import (
	"os"
	"os/signal"
	"syscall"
)

// SIGINFO isn't part of the stdlib, but it's 29 on most systems
const SIGINFO = syscall.Signal(29)

// SetHandler calls f once per signal until the returned stop function is called.
func SetHandler(f func()) (stop func()) {
	ch := make(chan os.Signal, 1)
	done := make(chan struct{})
	signal.Notify(ch, SIGINFO, syscall.SIGUSR1)

	go func() {
		for {
			select {
			case <-ch:
				f()
			case <-done:
				return
			}
		}
	}()
	return func() {
		signal.Stop(ch)
		close(done)
	}
}
