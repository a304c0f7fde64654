package cmdlog

import (
	"errors"

	"tweetsmith/internal/logging"
	"tweetsmith/internal/metrics"
	"tweetsmith/internal/model"
)

// Run executes f as command cmd, counting runs and errors and logging the outcome.
// A session window expiry is logged as a clean skip and not returned.
func Run(cmd string, f func() error) error {
	metrics.IncCommandRun(cmd)
	err := f()
	switch {
	case errors.Is(err, model.ErrWindowExpired):
		logging.Info(cmd+"_skipped", map[string]any{"reason": err.Error()})
		return nil
	case err != nil:
		metrics.IncCommandError(cmd)
		logging.Error(cmd+"_error", map[string]any{"kind": model.Kind(err), "error": err.Error()})
	default:
		logging.Info(cmd+"_ok", nil)
	}
	return err
}
