// Package dispatch implements the dispatcher core: queue registry,
// request-coalescing table, scheduler, and response delivery described
// in spec §3-§7. The HTTP surface in internal/httpapi is a thin
// translation layer over this package.
package dispatch

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/devazuka/dispatch/internal/apierr"
	"github.com/devazuka/dispatch/internal/cache"
	"github.com/devazuka/dispatch/internal/cooldown"
	"github.com/devazuka/dispatch/internal/metrics"
)

// Dispatcher ties the queue registry, request table, cooldown store and
// cache store together. All mutations to the request table, client
// table and in-memory cooldown mirror are serialized under mu, per
// spec §5; cache and cooldown-store I/O, and webhook POSTs, happen with
// mu released.
type Dispatcher struct {
	mu        sync.Mutex
	requests  map[string]*PendingRequest
	clients   map[string]*Client
	cooldowns map[string]cooldown.Timers // in-memory mirror of cooldownStore

	Queues        *Registry
	Cache         cache.Store
	CooldownStore *cooldown.Store

	StartAt time.Time

	webhookClient *http.Client
	log           logrus.FieldLogger
}

// NewDispatcher wires a Dispatcher from its collaborators.
func NewDispatcher(queues *Registry, store cache.Store, cdStore *cooldown.Store) *Dispatcher {
	return &Dispatcher{
		requests:      make(map[string]*PendingRequest),
		clients:       make(map[string]*Client),
		cooldowns:     make(map[string]cooldown.Timers),
		Queues:        queues,
		Cache:         store,
		CooldownStore: cdStore,
		StartAt:       time.Now(),
		webhookClient: &http.Client{Timeout: 30 * time.Second},
		log:           logrus.WithField("component", "dispatcher"),
	}
}

// EnqueueRequest is the parsed body of POST / (spec §6).
type EnqueueRequest struct {
	URL     *url.URL
	Expire  time.Duration
	Headers http.Header
	Reply   string
}

// EnqueueOutcome tags which of the three POST / success responses
// applies.
type EnqueueOutcome int

const (
	OutcomeCacheHit EnqueueOutcome = iota
	OutcomeStream
	OutcomeAccepted
)

// EnqueueResult carries whichever fields are relevant to Outcome.
type EnqueueResult struct {
	Outcome EnqueueOutcome
	Key     string

	CacheReader  io.ReadCloser // set iff OutcomeCacheHit
	CacheModTime time.Time     // set iff OutcomeCacheHit

	Stream *StreamWaiter // set iff OutcomeStream
}

// Enqueue implements spec §4.5's enqueue algorithm.
func (d *Dispatcher) Enqueue(req EnqueueRequest) (*EnqueueResult, error) {
	host := req.URL.Hostname()
	queue := d.Queues.Resolve(host)
	key := Key(queue.Name, req.URL.EscapedPath(), req.URL.RawQuery)

	if rc, mtime, err := d.Cache.Open(key, req.Expire); err == nil {
		metrics.CacheResult.WithLabelValues(queue.Name, "hit").Inc()
		return &EnqueueResult{Outcome: OutcomeCacheHit, Key: key, CacheReader: rc, CacheModTime: mtime}, nil
	} else if err != cache.ErrNotFound {
		if _, ok := err.(*cache.NotRegularFileError); ok {
			return nil, apierr.Internal(err.Error(), "cache entry corrupted")
		}
		d.log.WithField("cache-key", key).WithError(err).Warn("Cache read failed, falling through to fetch.")
	} else {
		metrics.CacheResult.WithLabelValues(queue.Name, "miss").Inc()
	}

	d.mu.Lock()
	pending, exists := d.requests[key]
	if !exists {
		pending = &PendingRequest{
			Key:       key,
			Href:      req.URL.String(),
			Headers:   req.Headers,
			QueueName: queue.Name,
			CreatedAt: time.Now(),
		}
		d.requests[key] = pending
	}

	var result *EnqueueResult
	if req.Reply != "" {
		pending.addHandler(&Handler{kind: handlerWebhook, webhook: req.Reply})
		result = &EnqueueResult{Outcome: OutcomeAccepted, Key: key}
	} else {
		waiter := NewStreamWaiter()
		pending.addHandler(&Handler{kind: handlerStream, stream: waiter})
		result = &EnqueueResult{Outcome: OutcomeStream, Key: key, Stream: waiter}
	}
	metrics.PendingRequests.Set(float64(len(d.requests)))
	d.mu.Unlock()

	return result, nil
}

// CancelStream detaches waiter from the PendingRequest at key, removing
// the request entirely if it was the last handler. It is idempotent
// against a concurrent Deliver: if the request is already gone, this is
// a no-op, matching spec §9's "guard against double-removal" note.
func (d *Dispatcher) CancelStream(key string, waiter *StreamWaiter) {
	d.mu.Lock()
	defer d.mu.Unlock()

	pending, ok := d.requests[key]
	if !ok {
		return
	}
	for _, h := range pending.handlers {
		if h.kind == handlerStream && h.stream == waiter {
			if pending.removeHandler(h) {
				delete(d.requests, key)
			}
			break
		}
	}
	metrics.PendingRequests.Set(float64(len(d.requests)))
}

// NextFor implements spec §4.6's scheduler plus the dispatch
// side-effects from the paragraph beneath it.
func (d *Dispatcher) NextFor(clientID string) (*PendingRequest, int, error) {
	if clientID == "" {
		return nil, 0, apierr.BadInput("missing client id")
	}

	now := time.Now()

	d.mu.Lock()
	cooldowns := d.cooldownsForLocked(clientID, now)
	best, count := pickNext(d.requests, cooldowns, now)
	client := d.clientForLocked(clientID)
	client.ActiveAt = now

	if best == nil {
		metrics.CooldownsActive.Set(float64(d.activeCooldownsLocked()))
		d.mu.Unlock()
		return nil, 0, nil
	}

	retry := !best.StartedAt.IsZero()
	if retry {
		best.Attempts++
	}
	best.StartedAt = now

	queue, ok := d.Queues.Get(best.QueueName)
	delay := DefaultQueueDelay
	if ok {
		delay = queue.Delay
	}
	cooldowns[best.QueueName] = now.Add(delay).UnixMilli()
	d.cooldowns[clientID] = cooldowns
	snapshot := cloneTimers(cooldowns)
	client.StartedCount++
	metrics.CooldownsActive.Set(float64(d.activeCooldownsLocked()))
	d.mu.Unlock()

	if err := d.CooldownStore.Save(clientID, snapshot, now); err != nil {
		d.log.WithField("client", clientID).WithError(err).Warn("Failed to persist cooldown timer.")
	}

	retryLabel := "false"
	if retry {
		retryLabel = "true"
	}
	metrics.Dispatches.WithLabelValues(best.QueueName, retryLabel).Inc()

	return best, count, nil
}

func cloneTimers(t cooldown.Timers) cooldown.Timers {
	out := make(cooldown.Timers, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// cooldownsForLocked returns the live, already-expiry-filtered timers for
// clientID, loading from the persistent store on first use. Caller must
// hold d.mu.
func (d *Dispatcher) cooldownsForLocked(clientID string, now time.Time) cooldown.Timers {
	if t, ok := d.cooldowns[clientID]; ok {
		// Lazily purge expired entries, per spec §3.
		nowMS := now.UnixMilli()
		for queue, unlockAt := range t {
			if unlockAt <= nowMS {
				delete(t, queue)
			}
		}
		return t
	}
	t := d.CooldownStore.Load(clientID, now)
	d.cooldowns[clientID] = t
	return t
}

// activeCooldownsLocked sums the unexpired cooldown entries held across
// every client's in-memory mirror. Caller must hold d.mu.
func (d *Dispatcher) activeCooldownsLocked() int {
	nowMS := time.Now().UnixMilli()
	total := 0
	for _, t := range d.cooldowns {
		for _, unlockAt := range t {
			if unlockAt > nowMS {
				total++
			}
		}
	}
	return total
}

func (d *Dispatcher) clientForLocked(clientID string) *Client {
	c, ok := d.clients[clientID]
	if !ok {
		c = &Client{ID: clientID}
		d.clients[clientID] = c
	}
	return c
}

// Deliver implements spec §4.7's response delivery algorithm.
func (d *Dispatcher) Deliver(key string, status int, body []byte, deliveringClientID string) error {
	d.mu.Lock()
	pending, ok := d.requests[key]
	if !ok {
		d.mu.Unlock()
		return apierr.NotFound("no pending request for key %q", key)
	}
	delete(d.requests, key)
	handlers := append([]*Handler(nil), pending.handlers...)
	queueName := pending.QueueName

	client := d.clientForLocked(deliveringClientID)
	client.FinishedCount++
	metrics.PendingRequests.Set(float64(len(d.requests)))
	d.mu.Unlock()

	var g errgroup.Group
	if status == http.StatusOK {
		g.Go(func() error {
			if err := d.Cache.Write(key, body); err != nil {
				d.log.WithField("cache-key", key).WithError(err).Warn("Cache write failed.")
			}
			return nil
		})
	}

	for _, h := range handlers {
		switch h.kind {
		case handlerStream:
			if status == http.StatusOK {
				h.stream.resolveBody(body)
			} else {
				h.stream.resolveErr(errorPayload(http.StatusText(status), string(body)))
			}
		case handlerWebhook:
			go d.deliverWebhook(h.webhook, key, pending.Href, status, body)
		}
	}

	_ = g.Wait()

	metrics.Delivered.WithLabelValues(queueName, http.StatusText(status)).Inc()
	return nil
}

// errorPayload renders the {message, stack} JSON body spec §4.5
// specifies for a StreamResolver's error delivery.
func errorPayload(message string, stack string) []byte {
	b, _ := json.Marshal(struct {
		Message string `json:"message"`
		Stack   string `json:"stack,omitempty"`
	}{Message: message, Stack: stack})
	return b
}
