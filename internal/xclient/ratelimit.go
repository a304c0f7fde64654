package xclient

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"tweetsmith/internal/model"
)

// Header families reported on the publish endpoint.
const (
	limitApp   = "x-rate-limit"
	limitDaily = "x-user-limit-24hour"
)

func cursorKey(family string) string { return "x:" + family + ":tweets" }

// newLimiter paces outgoing calls client-side.
func newLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		rps = 2.0
	}
	if burst <= 0 {
		burst = 10
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// parseLimit reads <family>-remaining and <family>-reset (unix seconds).
func parseLimit(h http.Header, family string) (model.RateLimit, bool) {
	rem, err1 := strconv.Atoi(strings.TrimSpace(h.Get(family + "-remaining")))
	reset, err2 := strconv.ParseInt(strings.TrimSpace(h.Get(family+"-reset")), 10, 64)
	if err1 != nil || err2 != nil {
		return model.RateLimit{}, false
	}
	return model.RateLimit{Remaining: rem, Reset: time.Unix(reset, 0).UTC(), Known: true}, true
}

// exhaustedReset picks the reset time of whichever family is at zero, the later one if both are.
func exhaustedReset(h http.Header, now time.Time) time.Time {
	var reset time.Time
	for _, f := range []string{limitApp, limitDaily} {
		if l, ok := parseLimit(h, f); ok && l.Remaining <= 0 && l.Reset.After(reset) {
			reset = l.Reset
		}
	}
	if reset.IsZero() {
		if l, ok := parseLimit(h, limitApp); ok {
			reset = l.Reset
		}
	}
	if !reset.After(now) {
		return time.Time{}
	}
	return reset
}

func (c *HTTPClient) recordLimits(ctx context.Context, h http.Header) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range []string{limitApp, limitDaily} {
		l, ok := parseLimit(h, f)
		if !ok {
			continue
		}
		c.limits[f] = l
		if c.cursors != nil {
			if err := c.cursors.SaveCursor(ctx, cursorKey(f), encodeLimit(l)); err != nil {
				c.log.WithError(err).WithField("family", f).Warn("ratelimit_persist_failed")
			}
		}
	}
	c.log.WithFields(logrus.Fields{"limits": fmt.Sprint(c.limits)}).Debug("ratelimit_observed")
}

// RateLimitStatus returns the tighter of the per-window and daily publish quotas last
// reported by the service. Snapshots whose reset has passed are ignored.
func (c *HTTPClient) RateLimitStatus(ctx context.Context) (model.RateLimit, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded && c.cursors != nil {
		for _, f := range []string{limitApp, limitDaily} {
			if _, ok := c.limits[f]; ok {
				continue
			}
			v, err := c.cursors.LoadCursor(ctx, cursorKey(f))
			if err != nil {
				return model.RateLimit{}, model.Storage("load rate limit", err)
			}
			if l, ok := decodeLimit(v); ok {
				c.limits[f] = l
			}
		}
		c.loaded = true
	}
	now := c.now()
	var best model.RateLimit
	for _, f := range []string{limitApp, limitDaily} {
		l, ok := c.limits[f]
		if !ok || !l.Reset.After(now) {
			continue
		}
		if !best.Known || l.Remaining < best.Remaining || (l.Remaining == best.Remaining && l.Reset.After(best.Reset)) {
			best = l
		}
	}
	return best, nil
}

func encodeLimit(l model.RateLimit) string {
	return strconv.Itoa(l.Remaining) + ":" + strconv.FormatInt(l.Reset.Unix(), 10)
}

func decodeLimit(v string) (model.RateLimit, bool) {
	rem, reset, ok := strings.Cut(v, ":")
	if !ok {
		return model.RateLimit{}, false
	}
	n, err1 := strconv.Atoi(rem)
	ts, err2 := strconv.ParseInt(reset, 10, 64)
	if err1 != nil || err2 != nil {
		return model.RateLimit{}, false
	}
	return model.RateLimit{Remaining: n, Reset: time.Unix(ts, 0).UTC(), Known: true}, true
}
