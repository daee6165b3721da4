package dispatch

import (
	"time"

	"github.com/devazuka/dispatch/internal/cooldown"
)

// TIMEOUT is the dispatch timeout from spec §3/§5: a request whose
// started_at is older than this becomes eligible for re-dispatch.
const TIMEOUT = 10 * time.Second

// pickNext implements spec §4.6's scheduling algorithm: among requests
// that are eligible (never dispatched, or past TIMEOUT) and whose queue
// is not in cooldown for this client, pick the one with the smallest
// CreatedAt. It returns the winner and the total number of eligible
// requests observed (ties are broken by map iteration order, which Go
// randomizes — "ties broken arbitrarily" per spec). Callers must hold
// whatever lock guards requests and cooldowns; this function performs no
// locking and does not mutate anything; it cannot suspend.
func pickNext(requests map[string]*PendingRequest, cooldowns cooldown.Timers, now time.Time) (*PendingRequest, int) {
	var best *PendingRequest
	count := 0
	for _, req := range requests {
		if !req.eligible(now, TIMEOUT) {
			continue
		}
		if unlockAt, locked := cooldowns[req.QueueName]; locked && unlockAt > now.UnixMilli() {
			continue
		}
		count++
		if best == nil || req.CreatedAt.Before(best.CreatedAt) {
			best = req
		}
	}
	return best, count
}
