package metrics

import (
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

var (
	CommandRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tweetsmith_command_runs_total",
		Help: "Total command invocations",
	}, []string{"command"})
	CommandErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tweetsmith_command_errors_total",
		Help: "Total failed command invocations",
	}, []string{"command"})
	GenerationAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tweetsmith_generation_attempts_total",
		Help: "Candidate generations requested from the LLM",
	}, []string{"category"})
	GenerationRejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tweetsmith_generation_rejections_total",
		Help: "Rejected candidates by reason",
	}, []string{"reason"})
	GenerationExhausted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tweetsmith_generation_exhausted_total",
		Help: "Generations that ran out of attempts",
	})
	Posts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tweetsmith_posts_total",
		Help: "Post outcomes",
	}, []string{"outcome"})
	PostRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tweetsmith_post_retries_total",
		Help: "Publish retries by kind (backoff, ratelimit)",
	}, []string{"kind"})
	RateLimitWait = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tweetsmith_ratelimit_wait_seconds",
		Help:    "Time spent waiting for publish quota",
		Buckets: []float64{1, 5, 30, 60, 300, 900, 1800},
	})
	HistoryRecords = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tweetsmith_history_records",
		Help: "Records in the history archive after the last write",
	})
	APIRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tweetsmith_api_retries_total",
		Help: "Total API retry attempts",
	}, []string{"endpoint"})
)

var collectors = []prometheus.Collector{
	CommandRuns, CommandErrors, GenerationAttempts, GenerationRejections, GenerationExhausted,
	Posts, PostRetries, RateLimitWait, HistoryRecords, APIRetries,
}

func init() {
	prometheus.MustRegister(collectors...)
}

// StartServer starts a metrics HTTP server on addr (e.g., ":9090").
func StartServer(addr string) {
	if addr == "" {
		addr = os.Getenv("METRICS_ADDR")
	}
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	go func() { _ = http.ListenAndServe(addr, mux) }()
}

// Push sends the current values to a Prometheus push gateway. One-shot
// commands call it on exit since nothing scrapes them.
func Push(gatewayURL, job string) error {
	if gatewayURL == "" {
		return nil
	}
	p := push.New(gatewayURL, job)
	for _, c := range collectors {
		p = p.Collector(c)
	}
	return p.Push()
}

func IncCommandRun(cmd string)   { CommandRuns.WithLabelValues(cmd).Inc() }
func IncCommandError(cmd string) { CommandErrors.WithLabelValues(cmd).Inc() }

// IncRejection counts a discarded generation candidate.
func IncRejection(reason string) { GenerationRejections.WithLabelValues(reason).Inc() }

// IncAPIRetry increments the retry counter for an endpoint.
func IncAPIRetry(endpoint string) { APIRetries.WithLabelValues(endpoint).Inc() }

// ObserveRateLimitWait records a quota wait.
func ObserveRateLimitWait(d time.Duration) { RateLimitWait.Observe(d.Seconds()) }
