// Package report delivers administrative reports scheduled by the
// reportReasonCode action (spec.md §4.9): out-of-band notices that a
// security operation failed for a reason code a downstream operator or
// monitoring system should see.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const httpTimeout = 10 * time.Second

// Entry is one administrative report.
type Entry struct {
	ReportID    string    `json:"reportId"`
	At          time.Time `json:"at"`
	Event       string    `json:"event"`
	PolicyID    int       `json:"policyId"`
	BundleSrc   string    `json:"bundleSource"`
	BundleDst   string    `json:"bundleDestination"`
	TargetBlock uint64    `json:"targetBlock"`
	ReasonCode  string    `json:"reasonCode"`
}

// Sink delivers administrative report entries.
type Sink interface {
	Report(ctx context.Context, e Entry) error
}

// NewEntry stamps a fresh ReportID and UTC timestamp on a report, so the
// log line and webhook payload for one event can be matched up.
func NewEntry(event string, policyID int, bundleSrc, bundleDst string, targetBlock uint64, reasonCode string) Entry {
	return Entry{
		ReportID: uuid.NewString(), At: time.Now().UTC(),
		Event: event, PolicyID: policyID,
		BundleSrc: bundleSrc, BundleDst: bundleDst,
		TargetBlock: targetBlock, ReasonCode: reasonCode,
	}
}

// LogSink writes report entries through log/slog. It never returns an
// error: logging is a best-effort ambient sink, not a delivery guarantee.
type LogSink struct {
	Logger *slog.Logger
}

// Report logs e at warn level.
func (s LogSink) Report(_ context.Context, e Entry) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("security operation report",
		"reportId", e.ReportID, "event", e.Event, "policyId", e.PolicyID,
		"bundleSource", e.BundleSrc, "bundleDestination", e.BundleDst,
		"targetBlock", e.TargetBlock, "reasonCode", e.ReasonCode)
	return nil
}

// WebhookSink POSTs report entries as JSON to a configured URL.
// Delivery failures are logged, not returned as errors, and are not
// retried.
type WebhookSink struct {
	URL    string
	Client *http.Client
}

// NewWebhookSink returns a WebhookSink posting to url with a bounded
// request timeout.
func NewWebhookSink(url string) *WebhookSink {
	return &WebhookSink{URL: url, Client: &http.Client{Timeout: httpTimeout}}
}

// Report POSTs e as JSON. It always returns nil; transport failures are
// logged via slog.Warn.
func (s *WebhookSink) Report(ctx context.Context, e Entry) error {
	body, err := json.Marshal(e)
	if err != nil {
		slog.Warn("report: marshal error", "err", err)
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		slog.Warn("report: building webhook request failed", "url", s.URL, "err", err)
		return nil
	}
	req.Header.Set("Content-Type", "application/json")

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		slog.Warn("report: webhook delivery failed", "url", s.URL, "err", err)
		return nil
	}
	defer resp.Body.Close() //nolint:errcheck // read-only close
	if resp.StatusCode >= 300 {
		slog.Warn("report: webhook returned non-2xx", "url", s.URL, "status", resp.StatusCode)
	}
	return nil
}

// MultiSink fans a report out to its sinks in order, stopping at and
// returning the first error encountered (if any).
type MultiSink []Sink

// Report delivers e to each sink in m in order; sinks after the first
// failing one are not called.
func (m MultiSink) Report(ctx context.Context, e Entry) error {
	for _, s := range m {
		if err := s.Report(ctx, e); err != nil {
			return fmt.Errorf("report: sink delivery failed: %w", err)
		}
	}
	return nil
}
