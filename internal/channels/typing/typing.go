// Package typing implements a keepalive loop for platform "typing..."
// indicators (Telegram chat actions, Slack's similar API, etc.), which
// expire after a few seconds and must be refreshed while an agent is still
// working on a reply.
package typing

import (
	"log/slog"
	"sync"
	"time"
)

// Options configures a Controller.
type Options struct {
	// StartFn is invoked immediately and then again every KeepaliveInterval
	// until Stop is called or MaxDuration elapses.
	StartFn func() error

	// KeepaliveInterval is how often StartFn is re-invoked to refresh the
	// platform's typing indicator before it expires.
	KeepaliveInterval time.Duration

	// MaxDuration is a safety net: the controller stops itself after this
	// long even if Stop is never called, so a lost reply can't leave a
	// chat stuck showing "typing..." forever.
	MaxDuration time.Duration
}

// Controller drives one chat's typing indicator for the lifetime of an
// in-flight agent reply.
type Controller struct {
	opts Options

	once   sync.Once
	stopCh chan struct{}
}

// New constructs a Controller. Call Start to begin sending the indicator.
func New(opts Options) *Controller {
	return &Controller{opts: opts, stopCh: make(chan struct{})}
}

// Start fires StartFn once synchronously (so the first indicator appears
// without delay) then continues refreshing it on a ticker until Stop is
// called or MaxDuration elapses.
func (c *Controller) Start() {
	if c.opts.StartFn == nil {
		return
	}
	if err := c.opts.StartFn(); err != nil {
		slog.Debug("typing indicator failed", "error", err)
	}

	go func() {
		ticker := time.NewTicker(c.opts.KeepaliveInterval)
		defer ticker.Stop()

		deadline := time.After(c.opts.MaxDuration)
		for {
			select {
			case <-c.stopCh:
				return
			case <-deadline:
				return
			case <-ticker.C:
				if err := c.opts.StartFn(); err != nil {
					slog.Debug("typing indicator keepalive failed", "error", err)
				}
			}
		}
	}()
}

// Stop ends the keepalive loop. Safe to call more than once.
func (c *Controller) Stop() {
	c.once.Do(func() { close(c.stopCh) })
}
