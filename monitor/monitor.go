// Package monitor is a passive, best-effort observer of runtime security
// anomalies. It is never on the critical path of login: every signal is
// counted, reporting is rate-limited, and reporter failures are swallowed.
package monitor

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	defaultReportWindow = time.Minute
	defaultBufferSize   = 16
)

// securityKeywords is the heuristic deciding whether an uncaught error is
// security-relevant enough to count as an anomaly.
var securityKeywords = []string{
	"script", "token", "auth", "origin", "security",
	"csp", "unauthorized", "injection", "blocked",
}

// Monitor collects anomaly signals and reports them to a backend collector
// at most once per window. Excess signals within a window are counted but not
// individually transmitted.
type Monitor struct {
	reporter  Reporter
	limiter   *rate.Limiter
	env       string
	userAgent string
	pageURL   string
	logger    zerolog.Logger
	nowFunc   func() time.Time
	probes    []Probe

	anomalies atomic.Uint64
	dropped   atomic.Uint64

	countsMu sync.Mutex
	counts   map[SignalType]uint64

	ch        chan Report
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

type Option func(*Monitor)

// WithEnv sets the runtime environment. Anything other than "PROD" logs
// reports locally instead of transmitting them.
func WithEnv(env string) Option {
	return func(m *Monitor) {
		m.env = env
	}
}

func WithReportWindow(window time.Duration) Option {
	return func(m *Monitor) {
		m.limiter = rate.NewLimiter(rate.Every(window), 1)
	}
}

func WithClientInfo(userAgent, pageURL string) Option {
	return func(m *Monitor) {
		m.userAgent = userAgent
		m.pageURL = pageURL
	}
}

func WithProbes(probes ...Probe) Option {
	return func(m *Monitor) {
		m.probes = append(m.probes, probes...)
	}
}

func WithMonitorLogger(logger zerolog.Logger) Option {
	return func(m *Monitor) {
		m.logger = logger
	}
}

func WithMonitorNowFunc(now func() time.Time) Option {
	return func(m *Monitor) {
		m.nowFunc = now
	}
}

func New(reporter Reporter, options ...Option) *Monitor {
	m := &Monitor{
		reporter: reporter,
		limiter:  rate.NewLimiter(rate.Every(defaultReportWindow), 1),
		env:      "DEV",
		logger:   zerolog.Nop(),
		nowFunc:  time.Now,
		counts:   make(map[SignalType]uint64),
		ch:       make(chan Report, defaultBufferSize),
		done:     make(chan struct{}),
	}
	for _, opt := range options {
		opt(m)
	}

	m.wg.Add(1)
	go m.run()
	return m
}

// Start launches the periodic probes. They stop when ctx is cancelled or the
// monitor is closed, whichever comes first.
func (m *Monitor) Start(ctx context.Context) {
	for _, probe := range m.probes {
		m.wg.Add(1)
		go m.sample(ctx, probe)
	}
}

func (m *Monitor) sample(ctx context.Context, probe Probe) {
	defer m.wg.Done()
	ticker := time.NewTicker(probe.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if hit, data := probe.Check(); hit {
				m.Observe(probe.Signal(), data)
			}
		case <-ctx.Done():
			return
		case <-m.done:
			return
		}
	}
}

// Observe records an anomaly signal. The counter always increments; a report
// is enqueued only when the rate limiter allows one this window.
func (m *Monitor) Observe(signal SignalType, data map[string]any) {
	total := m.anomalies.Add(1)

	m.countsMu.Lock()
	m.counts[signal]++
	m.countsMu.Unlock()

	if !m.limiter.Allow() {
		return
	}

	report := Report{
		Type:         signal,
		Data:         data,
		AnomalyCount: total,
		Timestamp:    m.nowFunc(),
		UserAgent:    m.userAgent,
		URL:          m.pageURL,
	}

	select {
	case m.ch <- report:
	case <-m.done:
	default:
		m.dropped.Add(1)
	}
}

// ObserveError applies the keyword heuristic to an uncaught error. Errors
// without security-relevant wording are not anomalies.
func (m *Monitor) ObserveError(err error) {
	if err == nil {
		return
	}
	message := strings.ToLower(err.Error())
	for _, keyword := range securityKeywords {
		if strings.Contains(message, keyword) {
			m.Observe(SignalScriptError, map[string]any{"message": err.Error()})
			return
		}
	}
}

// ObserveCSPViolation records a Content-Security-Policy violation report.
func (m *Monitor) ObserveCSPViolation(directive, blockedURI string) {
	m.Observe(SignalCSPViolation, map[string]any{
		"violatedDirective": directive,
		"blockedUri":        blockedURI,
	})
}

func (m *Monitor) run() {
	defer m.wg.Done()
	for {
		select {
		case report := <-m.ch:
			m.deliver(report)
		case <-m.done:
			for {
				select {
				case report := <-m.ch:
					m.deliver(report)
				default:
					return
				}
			}
		}
	}
}

// deliver transmits one report, or logs it locally outside production.
// Failures are swallowed; this component must never affect usability.
func (m *Monitor) deliver(report Report) {
	if m.env != "PROD" {
		m.logger.Info().
			Str("type", string(report.Type)).
			Uint64("anomalyCount", report.AnomalyCount).
			Msg("security anomaly (not transmitted outside production)")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.reporter.Send(ctx, report); err != nil {
		m.logger.Debug().Err(err).Msg("anomaly report failed")
	}
}

// Close drains pending reports and stops the worker and probes.
func (m *Monitor) Close() {
	m.closeOnce.Do(func() {
		close(m.done)
		m.wg.Wait()
	})
}

// AnomalyCount returns the total number of signals observed, including those
// suppressed by rate limiting.
func (m *Monitor) AnomalyCount() uint64 {
	return m.anomalies.Load()
}

// CountFor returns the number of signals observed for one type.
func (m *Monitor) CountFor(signal SignalType) uint64 {
	m.countsMu.Lock()
	defer m.countsMu.Unlock()
	return m.counts[signal]
}

// Dropped returns reports lost to a full queue.
func (m *Monitor) Dropped() uint64 {
	return m.dropped.Load()
}
