package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors shared by every layer. Callers match them with errors.Is.
var (
	// External service failures.
	ErrTransient   = errors.New("transient service error")
	ErrRateLimited = errors.New("rate limited")
	ErrAuth        = errors.New("authentication failed")

	// Permanent publish outcomes: the entry is failed without further attempts.
	// ErrUnconfirmed covers a publish accepted without a readable post id.
	ErrRejected    = errors.New("rejected by service")
	ErrUnconfirmed = errors.New("publish outcome unconfirmed")

	// Generation.
	ErrGenerationExhausted = errors.New("generation exhausted")
	ErrDuplicateContent    = errors.New("duplicate content")

	// Poster misuse and outcomes.
	ErrInvalidIndex       = errors.New("invalid index")
	ErrNotPending         = errors.New("entry not pending")
	ErrPostFailed         = errors.New("post failed")
	ErrHistoryWriteFailed = errors.New("history write failed")

	// Persistence.
	ErrStorage         = errors.New("storage error")
	ErrNotFound        = errors.New("not found")
	ErrVersionConflict = errors.New("version conflict")
	ErrInvalidRecord   = errors.New("invalid record")

	// ErrWindowExpired signals a clean abort: the session ran past its window.
	ErrWindowExpired = errors.New("session window expired")
)

// RateLimitError is returned by the posting service when a request was throttled.
type RateLimitError struct {
	Reset time.Time
}

func (e *RateLimitError) Error() string {
	if e.Reset.IsZero() {
		return ErrRateLimited.Error()
	}
	return fmt.Sprintf("%s until %s", ErrRateLimited, e.Reset.UTC().Format(time.RFC3339))
}

func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

// StorageError wraps a persistence failure with the operation that hit it.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage %s: %v", e.Op, e.Err) }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

func (e *StorageError) Unwrap() error { return e.Err }

// Storage wraps err as a StorageError unless it is nil or already one.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// Rejection records why one generation attempt was discarded.
type Rejection struct {
	Attempt   int
	Reason    string
	Candidate string
}

// ExhaustedError is returned when no acceptable item was produced within the attempt budget.
type ExhaustedError struct {
	Category   Category
	Rejections []Rejection
}

func (e *ExhaustedError) Error() string {
	reasons := make([]string, 0, len(e.Rejections))
	for _, r := range e.Rejections {
		reasons = append(reasons, fmt.Sprintf("#%d %s", r.Attempt, r.Reason))
	}
	return fmt.Sprintf("%s for %s after %d attempts: %s", ErrGenerationExhausted, e.Category, len(e.Rejections), strings.Join(reasons, "; "))
}

func (e *ExhaustedError) Is(target error) bool { return target == ErrGenerationExhausted }

// Kind names the taxonomy bucket of err for user-facing reports.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrWindowExpired):
		return "WindowExpired"
	case errors.Is(err, ErrAuth):
		return "AuthError"
	case errors.Is(err, ErrInvalidIndex):
		return "InvalidIndex"
	case errors.Is(err, ErrNotPending):
		return "NotPending"
	case errors.Is(err, ErrGenerationExhausted):
		return "GenerationExhausted"
	case errors.Is(err, ErrPostFailed):
		return "PostFailed"
	case errors.Is(err, ErrStorage):
		return "StorageError"
	case errors.Is(err, ErrRateLimited):
		return "RateLimited"
	case errors.Is(err, ErrRejected):
		return "Rejected"
	case errors.Is(err, ErrUnconfirmed):
		return "Unconfirmed"
	case errors.Is(err, ErrTransient):
		return "TransientServiceError"
	case errors.Is(err, ErrHistoryWriteFailed):
		return "HistoryWriteFailed"
	default:
		return "Error"
	}
}
