package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"tweetsmith/internal/model"
)

// transport posts JSON and retries connection errors and 5xx responses.
type transport struct {
	client   *http.Client
	executor failsafe.Executor[*http.Response]
}

func newTransport(timeout time.Duration, maxRetries int) *transport {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	policy := retrypolicy.NewBuilder[*http.Response]().
		WithBackoff(250*time.Millisecond, 4*time.Second).
		WithMaxRetries(maxRetries).
		WithJitterFactor(0.1).
		HandleIf(func(resp *http.Response, err error) bool {
			if err != nil {
				return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
			}
			return resp != nil && resp.StatusCode >= 500
		}).
		Build()
	return &transport{
		client:   &http.Client{Timeout: timeout},
		executor: failsafe.With[*http.Response](policy),
	}
}

// postJSON sends payload to url and returns the body of a 2xx response.
func (t *transport) postJSON(ctx context.Context, url string, payload []byte, headers map[string]string) ([]byte, error) {
	resp, err := t.executor.WithContext(ctx).Get(func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		resp, err := t.client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 {
			// drain so a retry can reuse the connection; status is classified below
			body, _ := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			resp.Body = io.NopCloser(bytes.NewReader(body))
		}
		return resp, nil
	})
	if err != nil {
		if resp != nil {
			_ = resp.Body.Close()
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if resp != nil {
			return nil, fmt.Errorf("%w: status %d", model.ErrTransient, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: %v", model.ErrTransient, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", model.ErrTransient, err)
	}
	if err := classifyStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

func classifyStatus(code int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: llm status %d: %s", model.ErrAuth, code, msg)
	case code == http.StatusTooManyRequests || code >= 500 || code == http.StatusRequestTimeout:
		return fmt.Errorf("%w: llm status %d: %s", model.ErrTransient, code, msg)
	default:
		return fmt.Errorf("llm status %d: %s", code, msg)
	}
}
