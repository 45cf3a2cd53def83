package notify

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultLimit is how many notifications a Recorder keeps before dropping the oldest.
const DefaultLimit = 20

type Kind string

const (
	KindSuccess Kind = "success"
	KindFailure Kind = "failure"
)

// Notification is one user-facing message about a mutation.
type Notification struct {
	Op      string    `json:"op"`
	Kind    Kind      `json:"kind"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Notifier receives the outcome of every mutation, keyed by operation.
type Notifier interface {
	Success(op, message string)
	Failure(op string, err error)
}

// Log is a Notifier that only writes to the logger.
type Log struct {
	log zerolog.Logger
}

func NewLog(log zerolog.Logger) *Log {
	return &Log{log: log}
}

func (l *Log) Success(op, message string) {
	l.log.Info().Str("op", op).Msg(message)
}

func (l *Log) Failure(op string, err error) {
	l.log.Error().Err(err).Str("op", op).Msg("operation failed")
}

// Nop discards every notification.
type Nop struct{}

func (Nop) Success(string, string) {}
func (Nop) Failure(string, error)  {}

// Recorder keeps the most recent notifications for the view's flash area
// and logs each one as it arrives.
type Recorder struct {
	mu    sync.Mutex
	items []Notification
	limit int
	log   zerolog.Logger
	now   func() time.Time
}

// NewRecorder creates a Recorder holding at most limit notifications.
// A non-positive limit means DefaultLimit.
func NewRecorder(log zerolog.Logger, limit int) *Recorder {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Recorder{
		limit: limit,
		log:   log,
		now:   time.Now,
	}
}

func (r *Recorder) Success(op, message string) {
	r.log.Info().Str("op", op).Msg(message)
	r.add(Notification{Op: op, Kind: KindSuccess, Message: message})
}

func (r *Recorder) Failure(op string, err error) {
	r.log.Error().Err(err).Str("op", op).Msg("operation failed")
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	r.add(Notification{Op: op, Kind: KindFailure, Message: msg})
}

func (r *Recorder) add(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n.At = r.now()
	r.items = append(r.items, n)
	if over := len(r.items) - r.limit; over > 0 {
		r.items = append([]Notification(nil), r.items[over:]...)
	}
}

// Recent returns the stored notifications, oldest first, without clearing them.
func (r *Recorder) Recent() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Notification, len(r.items))
	copy(out, r.items)
	return out
}

// Drain returns the stored notifications, oldest first, and clears them.
func (r *Recorder) Drain() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := r.items
	r.items = nil
	return out
}
