package model

import "time"

// MaxContentLength is the publishing limit for one item, counted in runes.
const MaxContentLength = 280

// Category identifies the kind of item to generate, e.g. POEM or JOKE.
type Category string

// Item is one unit of generated text.
type Item struct {
	Content   string    `json:"content"`
	Category  Category  `json:"category"`
	CreatedAt time.Time `json:"createdAt"`
}

// Status is the posting lifecycle state of a ScheduleEntry.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transition is allowed out of s.
func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusFailed }

// ScheduleEntry is one planned slot of a Schedule.
type ScheduleEntry struct {
	Index         int        `json:"index"`
	ScheduledTime time.Time  `json:"scheduledTime"`
	Item          Item       `json:"item"`
	Status        Status     `json:"status"`
	PostID        string     `json:"postId,omitempty"`
	PostedAt      *time.Time `json:"postedAt,omitempty"`
	Attempts      int        `json:"attempts"`
	LastError     string     `json:"lastError,omitempty"`
}

// Schedule is the ordered set of slots for one session.
// Version is bumped on every persisted write and used for compare-and-swap updates.
type Schedule struct {
	Session     string          `json:"session"`
	GeneratedAt time.Time       `json:"generatedAt"`
	Version     int64           `json:"version"`
	Entries     []ScheduleEntry `json:"entries"`
}

// Entry returns a pointer to the entry at index, or nil when out of range.
func (s *Schedule) Entry(index int) *ScheduleEntry {
	if index < 0 || index >= len(s.Entries) {
		return nil
	}
	return &s.Entries[index]
}

// Done reports whether every entry reached a terminal status.
func (s *Schedule) Done() bool {
	for _, e := range s.Entries {
		if !e.Status.Terminal() {
			return false
		}
	}
	return true
}

// HistoryRecord archives a previously published item for deduplication.
type HistoryRecord struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Category  Category  `json:"category"`
	CreatedAt time.Time `json:"createdAt"`
	Session   string    `json:"session"`
	PostID    string    `json:"postId,omitempty"`
}

// PostResult describes a successful publish of one entry.
// Warning is set (to an error wrapping ErrHistoryWriteFailed) when the
// post succeeded but archiving it did not.
type PostResult struct {
	Session  string
	Index    int
	PostID   string
	PostedAt time.Time
	Attempts int
	Warning  error
}

// Account is the identity returned by the posting service credential probe.
type Account struct {
	ID       string
	Username string
	Name     string
}

// RateLimit is the remaining quota of the publish endpoint.
// Known is false when the service has not reported counters yet.
type RateLimit struct {
	Remaining int
	Reset     time.Time
	Known     bool
}
