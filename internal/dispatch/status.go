package dispatch

import "time"

// ClientStatus is one entry of Status().Clients.
type ClientStatus struct {
	ID            string    `json:"id"`
	ActiveAt      time.Time `json:"activeAt"`
	StartedCount  int       `json:"startedCount"`
	FinishedCount int       `json:"finishedCount"`
}

// RequestStatus is one entry of Status().Requests.
type RequestStatus struct {
	Key       string    `json:"key"`
	Href      string    `json:"href"`
	QueueName string    `json:"queue"`
	CreatedAt time.Time `json:"createdAt"`
	Attempts  int       `json:"attempts"`
	Dispatched bool     `json:"dispatched"`
}

// Status is the body of GET /status.
type Status struct {
	Clients  []ClientStatus           `json:"clients"`
	Timers   map[string]map[string]int64 `json:"timers"`
	Requests []RequestStatus         `json:"requests"`
	StartAt  time.Time                `json:"startAt"`
}

// Status implements spec §6's introspection endpoint.
func (d *Dispatcher) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := Status{
		Timers:  make(map[string]map[string]int64, len(d.cooldowns)),
		StartAt: d.StartAt,
	}
	for _, c := range d.clients {
		out.Clients = append(out.Clients, ClientStatus{
			ID:            c.ID,
			ActiveAt:      c.ActiveAt,
			StartedCount:  c.StartedCount,
			FinishedCount: c.FinishedCount,
		})
	}
	for id, timers := range d.cooldowns {
		snap := make(map[string]int64, len(timers))
		for queue, unlockAt := range timers {
			snap[queue] = unlockAt
		}
		out.Timers[id] = snap
	}
	for _, req := range d.requests {
		out.Requests = append(out.Requests, RequestStatus{
			Key:        req.Key,
			Href:       req.Href,
			QueueName:  req.QueueName,
			CreatedAt:  req.CreatedAt,
			Attempts:   req.Attempts,
			Dispatched: !req.StartedAt.IsZero(),
		})
	}
	return out
}
