package observers

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/stake-plus/postoracle/src/poller"
	"github.com/stake-plus/postoracle/src/workflow"
)

// Metrics counts pipeline and poller activity on its own registry.
type Metrics struct {
	Registry *prometheus.Registry

	Submissions     *prometheus.CounterVec
	StageFailures   *prometheus.CounterVec
	PollTicks       *prometheus.CounterVec
	SessionOutcomes *prometheus.CounterVec
	PostStatus      *prometheus.CounterVec
	HTTPRequests    *prometheus.CounterVec
	HTTPLatency     *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		Submissions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "postoracle_submissions_total",
			Help: "Pipeline runs by outcome",
		}, []string{"outcome"}),
		StageFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "postoracle_stage_failures_total",
			Help: "Pipeline failures by the stage that failed",
		}, []string{"stage"}),
		PollTicks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "postoracle_poll_ticks_total",
			Help: "Applied status queries by result",
		}, []string{"result"}),
		SessionOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "postoracle_poll_sessions_total",
			Help: "Finished poll sessions by final state",
		}, []string{"state"}),
		PostStatus: f.NewCounterVec(prometheus.CounterOpts{
			Name: "postoracle_post_outcomes_total",
			Help: "Terminal moderation statuses observed",
		}, []string{"status"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "postoracle_http_requests_total",
			Help: "API requests by route and status code",
		}, []string{"method", "route", "code"}),
		HTTPLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "postoracle_http_request_duration_seconds",
			Help:    "API request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// TrackPoller exports the live session count of p.
func (m *Metrics) TrackPoller(p *poller.Poller) {
	m.Registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "postoracle_poll_sessions_active",
		Help: "Poll sessions currently running",
	}, func() float64 { return float64(len(p.Active())) }))
}

func (m *Metrics) Observe(_ context.Context, u poller.Update) {
	if u.Err != nil {
		m.PollTicks.WithLabelValues("error").Inc()
		return
	}
	m.PollTicks.WithLabelValues("ok").Inc()
}

func (m *Metrics) Finished(_ context.Context, o poller.Outcome) {
	m.SessionOutcomes.WithLabelValues(o.State.String()).Inc()
	if o.State == poller.Terminal && o.Last != nil {
		m.PostStatus.WithLabelValues(o.Last.Status.String()).Inc()
	}
}

func (m *Metrics) Stage(_ context.Context, ev workflow.StageEvent) {
	switch ev.Stage {
	case workflow.StagePolling:
		m.Submissions.WithLabelValues("accepted").Inc()
	case workflow.StageFailed:
		m.Submissions.WithLabelValues("failed").Inc()
		m.StageFailures.WithLabelValues(string(ev.FailedAt)).Inc()
	}
}
