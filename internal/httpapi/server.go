// Package httpapi translates the dispatcher's HTTP surface (spec §6)
// into calls against internal/dispatch. It owns no state of its own.
package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/devazuka/dispatch/internal/apierr"
	"github.com/devazuka/dispatch/internal/dispatch"
)

// Server is the dispatcher's net/http.Handler.
type Server struct {
	D   *dispatch.Dispatcher
	log logrus.FieldLogger
}

// New wires a Server around d.
func New(d *dispatch.Dispatcher) *Server {
	return &Server{D: d, log: logrus.WithField("component", "httpapi")}
}

// Mux returns the routed handler, with /metrics split onto its own
// mux entry on the same listener as the dispatcher's API.
func (s *Server) Mux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", s)
	return mux
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/":
		s.handleEnqueue(w, r)
	case r.Method == http.MethodGet && r.URL.Path == "/":
		s.handleNext(w, r)
	case r.Method == http.MethodGet && r.URL.Path == "/status":
		s.handleStatus(w, r)
	case r.Method == http.MethodPost && len(r.URL.Path) > 1:
		s.handleDeliver(w, r, strings.TrimPrefix(r.URL.Path, "/"))
	default:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write(apierr.NotFoundBody)
	}
}

type enqueueBody struct {
	URL     string            `json:"url"`
	Expire  int64             `json:"expire"` // milliseconds
	Headers map[string]string `json:"headers"`
	Reply   string            `json:"reply"`
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		apierr.WriteJSON(w, apierr.BadInput("failed to read request body"))
		return
	}

	var body enqueueBody
	if err := json.Unmarshal(raw, &body); err != nil {
		apierr.WriteJSON(w, apierr.BadInput("malformed JSON body: %v", err))
		return
	}

	target, err := url.Parse(body.URL)
	if err != nil || target.Host == "" {
		apierr.WriteJSON(w, apierr.BadInput("invalid url %q", body.URL))
		return
	}

	headers := make(http.Header, len(body.Headers))
	for k, v := range body.Headers {
		headers.Set(k, v)
	}

	result, err := s.D.Enqueue(dispatch.EnqueueRequest{
		URL:     target,
		Expire:  time.Duration(body.Expire) * time.Millisecond,
		Headers: headers,
		Reply:   body.Reply,
	})
	if err != nil {
		apierr.WriteJSON(w, err)
		return
	}

	switch result.Outcome {
	case dispatch.OutcomeCacheHit:
		defer result.CacheReader.Close()
		w.Header().Set("x-from-cache", result.Key)
		w.Header().Set("Last-Modified", result.CacheModTime.UTC().Format(http.TimeFormat))
		w.WriteHeader(http.StatusOK)
		_, _ = io.Copy(w, result.CacheReader)

	case dispatch.OutcomeAccepted:
		w.Header().Set("x-request-key", result.Key)
		w.WriteHeader(http.StatusAccepted)

	case dispatch.OutcomeStream:
		w.Header().Set("x-request-key", result.Key)
		bodyBytes, errBody := result.Stream.Wait(r.Context().Done())
		if bodyBytes == nil && errBody == nil {
			// Caller disconnected before delivery; unregister the waiter
			// so the PendingRequest doesn't leak. If a delivery races the
			// cancel, Wait may take either path; when the delivery already
			// removed the request, CancelStream is a no-op.
			s.D.CancelStream(result.Key, result.Stream)
			return
		}
		if errBody != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write(errBody)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(bodyBytes)
	}
}

func (s *Server) handleDeliver(w http.ResponseWriter, r *http.Request, key string) {
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		apierr.WriteJSON(w, apierr.BadInput("failed to read response body"))
		return
	}

	status := http.StatusOK
	if raw := r.Header.Get("x-status"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			status = parsed
		}
	}

	clientID := dispatch.ClientID(r.Header)
	if err := s.D.Deliver(key, status, body, clientID); err != nil {
		apierr.WriteJSON(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type nextResponse struct {
	Key     string            `json:"key"`
	Href    string            `json:"href"`
	Headers map[string]string `json:"headers,omitempty"`
	Total   int               `json:"total"`
}

func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	clientID := dispatch.ClientID(r.Header)
	req, total, err := s.D.NextFor(clientID)
	if err != nil {
		apierr.WriteJSON(w, err)
		return
	}
	if req == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	var headers map[string]string
	if len(req.Headers) > 0 {
		headers = make(map[string]string, len(req.Headers))
		for k := range req.Headers {
			headers[k] = req.Headers.Get(k)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(nextResponse{
		Key:     req.Key,
		Href:    req.Href,
		Headers: headers,
		Total:   total,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.D.Status())
}
