package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	retryablehttp "github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// Config configures a Fetcher.
type Config struct {
	DispatcherURL string
	ClientID      string
	PollInterval  time.Duration

	// Concurrency bounds how many upstream fetches this Fetcher runs at
	// once, the way throttlingTransport bounds concurrent upstream calls
	// in the teacher's proxy. Defaults to 1 (strictly sequential).
	Concurrency int64
}

// work is the decoded body of a 200 response from GET /.
type work struct {
	Key     string            `json:"key"`
	Href    string            `json:"href"`
	Headers map[string]string `json:"headers"`
}

// Fetcher implements the collaborator contract of spec §6: poll for
// work, fetch it, POST the body back.
type Fetcher struct {
	cfg Config

	// dispatcherClient talks to our own dispatcher; it is allowed to
	// retry aggressively since that channel is trusted and local.
	dispatcherClient *retryablehttp.Client

	// upstreamClient performs the untrusted third-party fetch. It
	// follows redirects (the net/http default) and carries no blanket
	// timeout of its own — the 10s budget is enforced per-request via
	// context, per spec §5.
	upstreamClient *http.Client

	sem *semaphore.Weighted
	log logrus.FieldLogger
}

// New builds a Fetcher from cfg.
func New(cfg Config) *Fetcher {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient = cleanhttp.DefaultPooledClient()
	rc.Logger = nil
	rc.RetryMax = 3
	rc.RetryWaitMin = 250 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second

	return &Fetcher{
		cfg:              cfg,
		dispatcherClient: rc,
		upstreamClient:   &http.Client{},
		sem:              semaphore.NewWeighted(cfg.Concurrency),
		log:              logrus.WithField("component", "fetcher").WithField("client", cfg.ClientID),
	}
}

// Run polls the dispatcher until ctx is cancelled. Each unit of work is
// processed in its own goroutine, at most cfg.Concurrency at once, so
// polling continues while a slot is free. When every slot is busy, the
// loop holds the work it just received until a slot frees up and does
// not poll again until then.
func (f *Fetcher) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		w, err := f.poll(ctx)
		if err != nil {
			f.log.WithError(err).Warn("Poll failed.")
			if !sleepCtx(ctx, f.cfg.PollInterval) {
				return ctx.Err()
			}
			continue
		}
		if w == nil {
			if !sleepCtx(ctx, f.cfg.PollInterval) {
				return ctx.Err()
			}
			continue
		}

		if err := f.sem.Acquire(ctx, 1); err != nil {
			return ctx.Err()
		}
		go func(w work) {
			defer f.sem.Release(1)
			f.process(ctx, w)
		}(*w)
	}
}

func (f *Fetcher) poll(ctx context.Context) (*work, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, f.cfg.DispatcherURL+"/", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-client-id", f.cfg.ClientID)

	resp, err := f.dispatcherClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &unexpectedStatusError{status: resp.StatusCode}
	}

	var w work
	if err := json.NewDecoder(resp.Body).Decode(&w); err != nil {
		return nil, err
	}
	return &w, nil
}

func (f *Fetcher) process(ctx context.Context, w work) {
	log := f.log.WithField("cache-key", w.Key).WithField("href", w.Href)

	status, body, err := f.fetchUpstream(ctx, w.Href, w.Headers)
	if err != nil {
		log.WithError(err).Warn("Upstream fetch failed, leaving request for retry.")
		return
	}

	if err := f.postBack(ctx, w.Key, status, body); err != nil {
		log.WithError(err).Warn("Failed to post response back to dispatcher.")
	}
}

// fetchUpstream implements spec §6(c)/(d)/(f): fetch href with a rotated
// User-Agent and merged headers, retrying 429/403 and "body failed"
// transport errors with attempts*750ms backoff, all within a 10s budget.
func (f *Fetcher) fetchUpstream(parent context.Context, href string, headers map[string]string) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(parent, 10*time.Second)
	defer cancel()

	for attempt := 1; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, href, nil)
		if err != nil {
			return 0, nil, err
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		req.Header.Set("User-Agent", RandomUserAgent())

		resp, err := f.upstreamClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return 0, nil, ctx.Err()
			}
			return 0, nil, err
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			// The "body failed" sentinel of spec §6(f): retry with backoff
			// rather than aborting outright.
			if !sleepCtx(ctx, time.Duration(attempt)*750*time.Millisecond) {
				return 0, nil, ctx.Err()
			}
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusForbidden {
			if !sleepCtx(ctx, time.Duration(attempt)*750*time.Millisecond) {
				return 0, nil, ctx.Err()
			}
			continue
		}

		return resp.StatusCode, body, nil
	}
}

func (f *Fetcher) postBack(ctx context.Context, key string, status int, body []byte) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, f.cfg.DispatcherURL+"/"+key, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("x-status", strconv.Itoa(status))
	req.Header.Set("x-client-id", f.cfg.ClientID)

	resp, err := f.dispatcherClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}

// sleepCtx sleeps for d or until ctx is done, reporting whether the
// sleep completed normally.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

type unexpectedStatusError struct{ status int }

func (e *unexpectedStatusError) Error() string {
	return "fetcher: unexpected status " + strconv.Itoa(e.status) + " from dispatcher"
}
