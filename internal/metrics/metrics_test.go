package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func TestMetricsExposure(t *testing.T) {
	IncCommandRun("post")
	IncCommandError("post")
	IncRejection("duplicate")
	IncAPIRetry("/users/me")
	GenerationAttempts.WithLabelValues("JOKE").Inc()
	GenerationExhausted.Inc()
	Posts.WithLabelValues("completed").Inc()
	PostRetries.WithLabelValues("backoff").Inc()
	HistoryRecords.Set(3)
	ObserveRateLimitWait(1500 * time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status: %d", rec.Code)
	}
	body := rec.Body.String()
	for _, m := range []string{
		"tweetsmith_command_runs_total",
		"tweetsmith_command_errors_total",
		"tweetsmith_generation_rejections_total",
		"tweetsmith_generation_attempts_total",
		"tweetsmith_generation_exhausted_total",
		"tweetsmith_posts_total",
		"tweetsmith_post_retries_total",
		"tweetsmith_ratelimit_wait_seconds",
		"tweetsmith_history_records",
		"tweetsmith_api_retries_total",
	} {
		if !strings.Contains(body, m) {
			t.Fatalf("expected metric %s in body", m)
		}
	}
}

func TestPushWithoutGatewayIsNoop(t *testing.T) {
	if err := Push("", "tweetsmith"); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestPushSendsToGateway(t *testing.T) {
	var gotPath string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()
	if err := Push(ts.URL, "tweetsmith_post"); err != nil {
		t.Fatalf("push: %v", err)
	}
	if !strings.Contains(gotPath, "/metrics/job/tweetsmith_post") {
		t.Fatalf("unexpected push path %q", gotPath)
	}
}
