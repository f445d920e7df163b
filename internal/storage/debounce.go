// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"sync"
	"time"
)

// DefaultDebounceDelay is the write coalescing window.
const DefaultDebounceDelay = 500 * time.Millisecond

// Debouncer coalesces bursts of Schedule calls into a single deferred
// invocation of fn. Each Schedule resets the timer, so rapid mutation
// bursts produce one write after the burst quiets down.
//
// The zero value is not usable; construct with NewDebouncer.
type Debouncer struct {
	mu    sync.Mutex
	delay time.Duration
	timer *time.Timer
	fn    func()
}

// NewDebouncer creates a debouncer that invokes fn after delay of
// quiescence. A non-positive delay falls back to DefaultDebounceDelay.
func NewDebouncer(delay time.Duration, fn func()) *Debouncer {
	if delay <= 0 {
		delay = DefaultDebounceDelay
	}
	return &Debouncer{
		delay: delay,
		fn:    fn,
	}
}

// Schedule arms (or re-arms) the timer. The pending invocation, if any,
// is pushed back by the full delay.
func (d *Debouncer) Schedule() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		d.timer = nil
		d.mu.Unlock()
		d.fn()
	})
}

// Flush cancels any pending timer and invokes fn immediately if a
// write was pending. It is a no-op when nothing is scheduled.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	pending := d.timer != nil
	if pending {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()

	if pending {
		d.fn()
	}
}

// Stop cancels any pending invocation without firing it.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Pending reports whether an invocation is scheduled but not yet fired.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}
