// Package poller implements the readiness-poller abstraction the event
// loop drives every tick. The contract (§6 of the spec) is a single
// function shape: given the current set of live file descriptors and a
// timeout, block until some subset is readable and return that subset.
// Three backends are provided, tried in the spec's stated preference
// order: epoll (Linux), poll, select.
package poller

import (
	"errors"
	"time"
)

// ErrUnsupported is returned by a backend's constructor when the current
// platform cannot provide it (e.g. epoll on a non-Linux build).
var ErrUnsupported = errors.New("poller: backend unsupported on this platform")

// Strategy names which readiness mechanism a Poller was built with.
type Strategy string

const (
	StrategyEpoll  Strategy = "epoll"
	StrategyPoll   Strategy = "poll"
	StrategySelect Strategy = "select"
)

// Poller is the readiness-poller contract. Wait may be called repeatedly
// with a changing fds slice as connections are accepted and closed; a
// Poller tracks whatever bookkeeping it needs internally and must not
// retain fds across a Wait call once they stop being passed in.
type Poller interface {
	// Wait blocks for up to timeout and returns the subset of fds that
	// became readable. An empty, non-error result means "no progress this
	// tick" (§5) — it is not a failure.
	Wait(fds []int, timeout time.Duration) ([]int, error)
	Close() error
}

// New builds the best available Poller for this platform, preferring
// epoll, then poll, then select (§4.4, §6).
func New() (Poller, Strategy, error) {
	if p, err := newEpollPoller(); err == nil {
		return p, StrategyEpoll, nil
	}
	if p, err := newPollPoller(); err == nil {
		return p, StrategyPoll, nil
	}
	if p, err := newSelectPoller(); err == nil {
		return p, StrategySelect, nil
	}
	return nil, "", ErrUnsupported
}
