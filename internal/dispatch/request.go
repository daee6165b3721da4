package dispatch

import (
	"net/http"
	"time"
)

// handlerKind tags a Handler's variant, per spec §9: "implementations
// should use tagged variants, not structural duck typing."
type handlerKind int

const (
	handlerStream handlerKind = iota
	handlerWebhook
)

// Handler is a waiter attached to a PendingRequest: either a
// StreamResolver feeding an open response stream, or a WebhookURL to be
// POSTed once the body is available.
type Handler struct {
	id   uint64
	kind handlerKind

	stream  *StreamWaiter // set iff kind == handlerStream
	webhook string        // set iff kind == handlerWebhook
}

// PendingRequest is the unique in-flight record for a cache key: at most
// one exists in the request table at any instant (spec §3 invariants).
type PendingRequest struct {
	Key       string
	Href      string
	Headers   http.Header
	QueueName string

	CreatedAt time.Time // monotonic, taken at enqueue; used for oldest-first scheduling
	StartedAt time.Time // zero value means "never dispatched" == infinitely old == eligible
	Attempts  int

	handlers []*Handler
	nextHID  uint64
}

// addHandler appends a handler and returns it. Handlers attached in
// order A, B, C are notified in that same order on delivery.
func (p *PendingRequest) addHandler(h *Handler) *Handler {
	p.nextHID++
	h.id = p.nextHID
	p.handlers = append(p.handlers, h)
	return h
}

// removeHandler drops h from the set, returning true if the set is now
// empty (meaning the caller should remove p from the request table).
func (p *PendingRequest) removeHandler(h *Handler) bool {
	for i, cur := range p.handlers {
		if cur.id == h.id {
			p.handlers = append(p.handlers[:i], p.handlers[i+1:]...)
			break
		}
	}
	return len(p.handlers) == 0
}

// eligible reports whether p can be offered to a fetcher right now: it
// has never been dispatched, or its dispatch has aged past timeout.
func (p *PendingRequest) eligible(now time.Time, timeout time.Duration) bool {
	if p.StartedAt.IsZero() {
		return true
	}
	return now.Sub(p.StartedAt) >= timeout
}
