// Package ratelimit tracks venue throttling state and gates how much a
// reconciliation cycle is allowed to do.
package ratelimit

import (
	"sync"
	"time"

	"github.com/yanun0323/logs"
)

// Gate is the controller's verdict for a cycle.
type Gate uint8

const (
	// GateProceed allows the full cycle.
	GateProceed Gate = iota
	// GatePaused means the venue pause window is still open: publish a
	// snapshot, run protective maintenance, place nothing.
	GatePaused
	// GateSkip throttles cycle frequency between actions.
	GateSkip
)

func (g Gate) String() string {
	switch g {
	case GatePaused:
		return "paused"
	case GateSkip:
		return "skip"
	default:
		return "proceed"
	}
}

type Config struct {
	// BaseBackoff is the first pause after a venue rate limit report.
	BaseBackoff time.Duration
	// MaxBackoff caps the exponential pause growth.
	MaxBackoff time.Duration
	// ActionInterval throttles how often cycles may act. Zero disables.
	ActionInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 5 * time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 5 * time.Minute
	}
	return c
}

// Controller owns the rate-limit state machine for one engine. Venues share
// a request budget but each engine tracks its own throttling independently.
type Controller struct {
	mu          sync.Mutex
	cfg         Config
	pausedUntil time.Time
	failures    int
	lastAction  time.Time

	now func() time.Time
}

func New(cfg Config) *Controller {
	return &Controller{cfg: cfg.withDefaults(), now: time.Now}
}

// BeforeCycle decides what the next cycle may do.
func (c *Controller) BeforeCycle() Gate {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if now.Before(c.pausedUntil) {
		return GatePaused
	}

	if c.cfg.ActionInterval > 0 && now.Sub(c.lastAction) < c.cfg.ActionInterval {
		return GateSkip
	}

	c.lastAction = now
	return GateProceed
}

// RegisterRateLimit records a venue throttling report and opens a pause
// window that grows with consecutive failures.
func (c *Controller) RegisterRateLimit(context string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	backoff := c.backoffLocked()
	c.failures++
	c.pausedUntil = c.now().Add(backoff)

	logs.Warnf("venue rate limit (%s): pausing entries for %s, consecutive failures %d",
		context, backoff, c.failures)
}

// OnCycleComplete clears the failure streak after a clean cycle once the
// pause window has fully elapsed.
func (c *Controller) OnCycleComplete(hadRateLimit bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if hadRateLimit {
		return
	}

	if c.now().Before(c.pausedUntil) {
		return
	}

	if c.failures > 0 {
		logs.Infof("venue rate limit cleared after %d failures", c.failures)
	}
	c.failures = 0
}

// ShouldBlockEntries reports whether new entry placement must stay blocked.
// Protective order maintenance is never blocked by this controller.
func (c *Controller) ShouldBlockEntries() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now().Before(c.pausedUntil) || c.failures > 0
}

func (c *Controller) backoffLocked() time.Duration {
	backoff := c.cfg.BaseBackoff
	for i := 0; i < c.failures; i++ {
		backoff *= 2
		if backoff >= c.cfg.MaxBackoff {
			return c.cfg.MaxBackoff
		}
	}

	return backoff
}
