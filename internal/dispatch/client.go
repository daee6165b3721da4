package dispatch

import (
	"net/http"
	"time"
)

// Client tracks a fetcher's identity and dispatch bookkeeping, per
// spec §3.
type Client struct {
	ID            string
	ActiveAt      time.Time
	StartedCount  int
	FinishedCount int
}

// clientIDHeaders lists the headers consulted, in priority order, to
// derive a client id per spec §3.
var clientIDHeaders = []string{
	"x-client-id",
	"true-client-ip",
	"cf-connecting-ip",
	"x-forwarded-for",
}

// ClientID returns the first non-empty header from clientIDHeaders, or
// "" if none are set.
func ClientID(h http.Header) string {
	for _, name := range clientIDHeaders {
		if v := h.Get(name); v != "" {
			return v
		}
	}
	return ""
}
