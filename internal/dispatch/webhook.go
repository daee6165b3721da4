package dispatch

import (
	"bytes"
	"net/http"
	"strconv"
	"time"

	"github.com/devazuka/dispatch/internal/metrics"
)

// maxWebhookAttempts bounds the otherwise-unbounded retry loop spec §9
// open question (c) flags as a source bug worth fixing in a real
// implementation. Backing off attempt*750ms for attempts 1..20 sums to
// 157.5s (~2.6 minutes), which is far past any caller's patience for an
// async reply.
const maxWebhookAttempts = 20

// deliverWebhook implements spec §4.5's webhook handler delivery: POST
// the body with the three x-request-* headers, retrying only on a 500
// from the recipient, backing off attempts*750ms between tries.
func (d *Dispatcher) deliverWebhook(webhookURL, key, href string, status int, body []byte) {
	log := d.log.WithField("cache-key", key).WithField("webhook", webhookURL)

	for attempt := 1; attempt <= maxWebhookAttempts; attempt++ {
		req, err := http.NewRequest(http.MethodPost, webhookURL, bytes.NewReader(body))
		if err != nil {
			log.WithError(err).Error("Failed to build webhook request.")
			metrics.WebhookAttempts.WithLabelValues("build-error").Inc()
			return
		}
		req.Header.Set("x-request-key", key)
		req.Header.Set("x-request-href", href)
		req.Header.Set("x-request-status", strconv.Itoa(status))

		resp, err := d.webhookClient.Do(req)
		if err != nil {
			log.WithError(err).Warn("Webhook delivery transport error, not retrying.")
			metrics.WebhookAttempts.WithLabelValues("transport-error").Inc()
			return
		}
		resp.Body.Close()

		if resp.StatusCode != http.StatusInternalServerError {
			metrics.WebhookAttempts.WithLabelValues("delivered").Inc()
			return
		}

		metrics.WebhookAttempts.WithLabelValues("retry").Inc()
		log.WithField("attempt", attempt).Warn("Webhook recipient returned 500, retrying.")
		time.Sleep(time.Duration(attempt) * 750 * time.Millisecond)
	}

	log.Warn("Webhook delivery exhausted retry attempts.")
	metrics.WebhookAttempts.WithLabelValues("exhausted").Inc()
}
