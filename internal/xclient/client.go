package xclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"tweetsmith/internal/config"
	"tweetsmith/internal/logging"
	"tweetsmith/internal/metrics"
	"tweetsmith/internal/model"
)

// Publisher is the posting service as seen by the poster.
type Publisher interface {
	VerifyIdentity(ctx context.Context) (model.Account, error)
	RateLimitStatus(ctx context.Context) (model.RateLimit, error)
	Publish(ctx context.Context, text string) (string, error)
}

// CursorStore persists small key/value snapshots between processes.
type CursorStore interface {
	SaveCursor(ctx context.Context, key, value string) error
	LoadCursor(ctx context.Context, key string) (string, error)
}

// HTTPClient talks to X API v2 with OAuth 1.0a user context or an OAuth2 user token.
type HTTPClient struct {
	baseURL     string
	httpClient  *http.Client
	limiter     *rate.Limiter
	maxAttempts int
	baseBackoff time.Duration
	userToken   string
	oauth       *oauth1
	cursors     CursorStore
	log         logging.Logger
	now         func() time.Time

	mu     sync.Mutex
	limits map[string]model.RateLimit
	loaded bool
}

// NewHTTPClient returns a client for cfg. It fails when neither a user token nor a
// complete OAuth1 credential set is configured. cursors may be nil.
func NewHTTPClient(cfg config.XConfig, creds config.CredentialsConfig, cursors CursorStore, log logging.Logger) (*HTTPClient, error) {
	c := &HTTPClient{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		limiter:     newLimiter(cfg.RPS, cfg.Burst),
		maxAttempts: cfg.MaxAttempts,
		baseBackoff: cfg.BaseBackoff,
		userToken:   creds.UserToken,
		cursors:     cursors,
		log:         log,
		now:         time.Now,
		limits:      map[string]model.RateLimit{},
	}
	if c.baseURL == "" {
		c.baseURL = "https://api.twitter.com/2"
	}
	if c.httpClient.Timeout <= 0 {
		c.httpClient.Timeout = 15 * time.Second
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = 5
	}
	if c.baseBackoff <= 0 {
		c.baseBackoff = 500 * time.Millisecond
	}
	if c.log == nil {
		c.log = logging.Default()
	}
	if c.userToken == "" {
		if creds.ConsumerKey == "" || creds.ConsumerSecret == "" || creds.AccessToken == "" || creds.AccessSecret == "" {
			return nil, fmt.Errorf("%w: missing X credentials (set X_USER_TOKEN or the four OAuth1 values)", model.ErrAuth)
		}
		c.oauth = newOAuth1(creds.ConsumerKey, creds.ConsumerSecret, creds.AccessToken, creds.AccessSecret)
	}
	return c, nil
}

func (c *HTTPClient) auth(req *http.Request) {
	if c.userToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.userToken)
	} else {
		c.oauth.sign(req, queryParams(req))
	}
	req.Header.Set("Accept", "application/json")
}

// VerifyIdentity returns the account the credentials belong to.
func (c *HTTPClient) VerifyIdentity(ctx context.Context) (model.Account, error) {
	var out model.Account
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/users/me", nil)
	if err != nil {
		return out, err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return out, err
	}
	resp, err := c.doWithRetry(ctx, req, "users_me")
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return out, c.statusError(resp, "verify identity")
	}
	var raw struct {
		Data struct {
			ID       string `json:"id"`
			Name     string `json:"name"`
			Username string `json:"username"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return out, fmt.Errorf("decode users/me: %w", err)
	}
	if raw.Data.ID == "" {
		return out, fmt.Errorf("%w: users/me returned no account", model.ErrAuth)
	}
	return model.Account{ID: raw.Data.ID, Username: raw.Data.Username, Name: raw.Data.Name}, nil
}

// Publish creates a post and returns its id. It makes exactly one attempt; the caller owns retries.
func (c *HTTPClient) Publish(ctx context.Context, text string) (string, error) {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tweets", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	c.auth(req)
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: publish: %v", model.ErrTransient, err)
	}
	defer resp.Body.Close()
	c.recordLimits(ctx, resp.Header)
	if resp.StatusCode == http.StatusForbidden {
		// X answers 403 for content it refuses (duplicates, policy), not only for revoked access.
		return "", fmt.Errorf("%w: publish: status 403: %s", model.ErrRejected, readDetail(resp))
	}
	if resp.StatusCode >= 400 {
		return "", c.statusError(resp, "publish")
	}
	var raw struct {
		Data struct {
			ID   string `json:"id"`
			Text string `json:"text"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return "", fmt.Errorf("%w: status %d: decode publish response: %v", model.ErrUnconfirmed, resp.StatusCode, err)
	}
	if raw.Data.ID == "" {
		return "", fmt.Errorf("%w: status %d: publish response carried no id", model.ErrUnconfirmed, resp.StatusCode)
	}
	return raw.Data.ID, nil
}

func readDetail(resp *http.Response) string {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return strings.TrimSpace(string(b))
}

// statusError maps an error response to the shared taxonomy.
func (c *HTTPClient) statusError(resp *http.Response, op string) error {
	detail := readDetail(resp)
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s: status %d: %s", model.ErrAuth, op, resp.StatusCode, detail)
	case resp.StatusCode == http.StatusTooManyRequests:
		return &model.RateLimitError{Reset: exhaustedReset(resp.Header, c.now())}
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: %s: status %d", model.ErrTransient, op, resp.StatusCode)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return fmt.Errorf("%w: %s: status %d: %s", model.ErrRejected, op, resp.StatusCode, detail)
	default:
		return fmt.Errorf("%s: x api status %d: %s", op, resp.StatusCode, detail)
	}
}

func (c *HTTPClient) doWithRetry(ctx context.Context, req *http.Request, endpoint string) (*http.Response, error) {
	backoff := c.baseBackoff
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		r := req.Clone(ctx)
		c.auth(r)
		resp, err := c.httpClient.Do(r)
		if err == nil {
			retryable := resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode >= 500 && resp.StatusCode <= 599)
			if !retryable || attempt == c.maxAttempts {
				return resp, nil
			}
			wait := backoff
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if secs, err := strconv.Atoi(ra); err == nil {
					wait = time.Duration(secs) * time.Second
				} else if t, err := http.ParseTime(ra); err == nil {
					if d := time.Until(t); d > 0 {
						wait = d
					}
				}
			}
			_ = resp.Body.Close()
			// jitter +/-20%
			jitter := time.Duration(float64(wait) * 0.2)
			if jitter > 0 {
				wait = wait - jitter + time.Duration(time.Now().UnixNano()%int64(2*jitter))
			}
			metrics.IncAPIRetry(endpoint)
			c.log.WithFields(logrus.Fields{"endpoint": endpoint, "status": resp.StatusCode, "attempt": attempt, "wait": wait.String()}).Warn("x_api_retry")
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			backoff *= 2
			continue
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		metrics.IncAPIRetry(endpoint)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff *= 2
	}
	return nil, fmt.Errorf("%w: request failed after %d attempts: %v", model.ErrTransient, c.maxAttempts, lastErr)
}

func queryParams(req *http.Request) map[string]string {
	out := map[string]string{}
	for k, v := range req.URL.Query() {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}
