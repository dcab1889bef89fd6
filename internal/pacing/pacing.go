// Package pacing holds the delays used to stay under GitHub's abuse
// detection and to keep dependent writes ordered on the issue timeline.
package pacing

import (
	"context"
	"time"
)

// Policy describes every deliberate pause of a migration run
type Policy struct {
	// MaxRequests is the number of mutating requests after which the
	// client cools down.
	MaxRequests int
	Cooldown    time.Duration
	// WriteDelay separates each successful issue write from the next one.
	WriteDelay time.Duration
	// TicketBatch is the number of tickets after which the engine pauses
	// for BatchCooldown and saves the checkpoint.
	TicketBatch   int
	BatchCooldown time.Duration
}

// DefaultPolicy returns the pacing used against api.github.com
func DefaultPolicy() Policy {
	return Policy{
		MaxRequests:   20,
		Cooldown:      70 * time.Second,
		WriteDelay:    10 * time.Second,
		TicketBatch:   25,
		BatchCooldown: 60 * time.Second,
	}
}

// NoDelay returns a policy that never sleeps
func NoDelay() Policy {
	return Policy{MaxRequests: 20, TicketBatch: 25}
}

// SleepFunc blocks for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the real SleepFunc
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Counter counts mutating requests and cools down once MaxRequests is
// reached. It is not safe for concurrent use.
type Counter struct {
	policy Policy
	sleep  SleepFunc
	count  int
}

// NewCounter creates a request counter. A nil sleep uses Sleep.
func NewCounter(policy Policy, sleep SleepFunc) *Counter {
	if sleep == nil {
		sleep = Sleep
	}
	return &Counter{policy: policy, sleep: sleep}
}

// Observe records one mutating request. It reports whether a cooldown
// was taken.
func (c *Counter) Observe(ctx context.Context) (bool, error) {
	c.count++
	if c.policy.MaxRequests <= 0 || c.count < c.policy.MaxRequests {
		return false, nil
	}
	c.count = 0
	return true, c.sleep(ctx, c.policy.Cooldown)
}

// Count returns the requests seen since the last cooldown
func (c *Counter) Count() int {
	return c.count
}
