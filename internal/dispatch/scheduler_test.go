package dispatch

import (
	"testing"
	"time"

	"github.com/devazuka/dispatch/internal/cooldown"
)

func TestPickNextPrefersOldest(t *testing.T) {
	now := time.Now()
	older := &PendingRequest{Key: "q/older", QueueName: "q", CreatedAt: now.Add(-time.Minute)}
	newer := &PendingRequest{Key: "q/newer", QueueName: "q", CreatedAt: now}

	requests := map[string]*PendingRequest{older.Key: older, newer.Key: newer}
	best, count := pickNext(requests, cooldown.Timers{}, now)

	if best != older {
		t.Errorf("pickNext() chose %v, want the older request", best)
	}
	if count != 2 {
		t.Errorf("pickNext() count = %d, want 2", count)
	}
}

func TestPickNextSkipsRequestsOnCooldown(t *testing.T) {
	now := time.Now()
	req := &PendingRequest{Key: "q/x", QueueName: "q", CreatedAt: now}
	requests := map[string]*PendingRequest{req.Key: req}

	cooldowns := cooldown.Timers{"q": now.Add(time.Minute).UnixMilli()}
	best, count := pickNext(requests, cooldowns, now)

	if best != nil || count != 0 {
		t.Errorf("pickNext() = (%v, %d), want (nil, 0) while queue is on cooldown", best, count)
	}
}

func TestPickNextTreatsNeverDispatchedAsEligible(t *testing.T) {
	now := time.Now()
	// StartedAt zero value means "never dispatched" == infinitely old,
	// per spec §9 open question (b).
	req := &PendingRequest{Key: "q/x", QueueName: "q", CreatedAt: now}
	best, _ := pickNext(map[string]*PendingRequest{req.Key: req}, cooldown.Timers{}, now)
	if best != req {
		t.Errorf("never-dispatched request should be eligible")
	}
}

func TestPickNextRetriesAfterTimeout(t *testing.T) {
	now := time.Now()
	dispatched := &PendingRequest{Key: "q/x", QueueName: "q", CreatedAt: now.Add(-time.Hour), StartedAt: now.Add(-TIMEOUT - time.Second)}
	requests := map[string]*PendingRequest{dispatched.Key: dispatched}

	best, _ := pickNext(requests, cooldown.Timers{}, now)
	if best != dispatched {
		t.Errorf("a dispatch older than TIMEOUT should become eligible again")
	}
}

func TestPickNextSkipsRecentlyDispatched(t *testing.T) {
	now := time.Now()
	dispatched := &PendingRequest{Key: "q/x", QueueName: "q", CreatedAt: now, StartedAt: now}
	best, count := pickNext(map[string]*PendingRequest{dispatched.Key: dispatched}, cooldown.Timers{}, now)
	if best != nil || count != 0 {
		t.Errorf("a request dispatched moments ago should not be eligible yet, got (%v, %d)", best, count)
	}
}
