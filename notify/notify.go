// Package notify delivers billing notices to users. Delivery is best
// effort: callers log failures and carry on.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrNoContact is returned by a Directory that has no address for a user.
var ErrNoContact = errors.New("notify: no contact address")

// Message is a single outbound notice.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Notifier sends messages.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// Directory resolves a user to a contact address.
type Directory interface {
	ContactAddress(ctx context.Context, userID string) (string, error)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, msg Message) error

func (f NotifierFunc) Send(ctx context.Context, msg Message) error { return f(ctx, msg) }

// ──────────────────────────────────────────────────
// LogNotifier
// ──────────────────────────────────────────────────

// LogNotifier writes messages to a logger instead of delivering them.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier returns a LogNotifier; a nil logger uses slog.Default.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(ctx context.Context, msg Message) error {
	n.logger.InfoContext(ctx, "notification",
		"to", msg.To,
		"subject", msg.Subject,
		"body", msg.Body,
	)
	return nil
}

// ──────────────────────────────────────────────────
// Directory implementations
// ──────────────────────────────────────────────────

// MapDirectory is a static, concurrency-safe Directory.
type MapDirectory struct {
	mu       sync.RWMutex
	contacts map[string]string
}

// NewMapDirectory copies contacts into a new directory.
func NewMapDirectory(contacts map[string]string) *MapDirectory {
	d := &MapDirectory{contacts: make(map[string]string, len(contacts))}
	for k, v := range contacts {
		d.contacts[k] = v
	}
	return d
}

func (d *MapDirectory) ContactAddress(_ context.Context, userID string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	addr, ok := d.contacts[userID]
	if !ok || addr == "" {
		return "", fmt.Errorf("%w for user %q", ErrNoContact, userID)
	}
	return addr, nil
}

// Set registers or replaces the address for userID.
func (d *MapDirectory) Set(userID, address string) {
	d.mu.Lock()
	d.contacts[userID] = address
	d.mu.Unlock()
}

// IdentityDirectory treats the user id as the contact address, for
// deployments keyed by email.
type IdentityDirectory struct{}

func (IdentityDirectory) ContactAddress(_ context.Context, userID string) (string, error) {
	if userID == "" {
		return "", ErrNoContact
	}
	return userID, nil
}

// ──────────────────────────────────────────────────
// Recorder
// ──────────────────────────────────────────────────

// Recorder keeps every sent message in memory. Useful in tests and dry runs.
type Recorder struct {
	mu   sync.Mutex
	sent []Message
	err  error
}

func (r *Recorder) Send(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, msg)
	return nil
}

// Fail makes subsequent sends return err; nil restores delivery.
func (r *Recorder) Fail(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

// Sent returns a copy of the delivered messages.
func (r *Recorder) Sent() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.sent))
	copy(out, r.sent)
	return out
}
