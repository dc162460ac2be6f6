package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

const routeSecurityReport = "/security/report"

// SignalType classifies an observed anomaly.
type SignalType string

const (
	SignalScriptError      SignalType = "script_error"
	SignalCSPViolation     SignalType = "csp_violation"
	SignalMemoryPressure   SignalType = "memory_pressure"
	SignalDebuggerAttached SignalType = "debugger_attached"
)

// Report is the fire-and-forget payload posted to the backend collector.
type Report struct {
	Type         SignalType     `json:"type"`
	Data         map[string]any `json:"data,omitempty"`
	AnomalyCount uint64         `json:"anomalyCount"`
	Timestamp    time.Time      `json:"timestamp"`
	UserAgent    string         `json:"userAgent"`
	URL          string         `json:"url"`
}

type Reporter interface {
	Send(ctx context.Context, report Report) error
}

var _ Reporter = (*HTTPReporter)(nil)

// HTTPReporter posts reports to the backend collector endpoint.
type HTTPReporter struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPReporter(baseURL string, client *http.Client) *HTTPReporter {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPReporter{baseURL: baseURL, httpClient: client}
}

func (r *HTTPReporter) Send(ctx context.Context, report Report) error {
	body, err := json.Marshal(report)
	if err != nil {
		return errors.Wrap(err, "[Send] marshal")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+routeSecurityReport, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "[Send] build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "[Send] post")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.Errorf("[Send] collector returned %d", resp.StatusCode)
	}
	return nil
}
