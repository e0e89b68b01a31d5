// Package async holds the small coordination helpers shared by the
// client flows: single-flight guards, bounded polling and debouncing.
package async

import (
	"errors"
	"sync/atomic"
)

// ErrBusy is returned when a guarded action is already running.
var ErrBusy = errors.New("action already in progress")

// Guard is a busy flag. Run refuses to start while another Run is in flight
// and always clears the flag on return, panics included.
type Guard struct {
	busy atomic.Bool
}

// Busy reports whether an action is running.
func (g *Guard) Busy() bool { return g.busy.Load() }

// Run executes fn exclusively.
func (g *Guard) Run(fn func() error) error {
	if !g.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer g.busy.Store(false)
	return fn()
}

// Exclusive is Run for functions returning a value.
func Exclusive[T any](g *Guard, fn func() (T, error)) (T, error) {
	var out T
	err := g.Run(func() error {
		var err error
		out, err = fn()
		return err
	})
	return out, err
}
