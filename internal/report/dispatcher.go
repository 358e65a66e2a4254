package report

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// Dispatcher delivers a finished report to the notification sink.
// Best-effort: the scheduler never retries a failed dispatch within a cycle.
type Dispatcher interface {
	Dispatch(ctx context.Context, r Report) error
}

// NATSDispatcher publishes reports to a NATS subject. The downstream messenger
// service picks them up and handles the actual WhatsApp delivery.
type NATSDispatcher struct {
	conn       *nats.Conn
	subject    string
	maxRetries int

	mu        sync.RWMutex
	recipient string
}

func NewNATSDispatcher(conn *nats.Conn, subject, recipient string, maxRetries int) *NATSDispatcher {
	if subject == "" {
		subject = "lantern.reports.nightly"
	}
	return &NATSDispatcher{
		conn:       conn,
		subject:    subject,
		recipient:  recipient,
		maxRetries: maxRetries,
	}
}

// SetRecipient swaps the delivery target. Called by the config watcher on
// hot reload.
func (d *NATSDispatcher) SetRecipient(recipient string) {
	d.mu.Lock()
	d.recipient = recipient
	d.mu.Unlock()
}

func (d *NATSDispatcher) Dispatch(ctx context.Context, r Report) error {
	d.mu.RLock()
	recipient := d.recipient
	d.mu.RUnlock()

	if recipient == "" {
		return fmt.Errorf("no report recipient configured")
	}

	payload := struct {
		Report
		Recipient string `json:"recipient"`
	}{Report: r, Recipient: recipient}

	msg, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	for i := 0; i <= d.maxRetries; i++ {
		err = d.conn.Publish(d.subject, msg)
		if err == nil {
			return nil
		}

		// Backoff
		time.Sleep(time.Duration(i*100) * time.Millisecond)
	}

	return fmt.Errorf("publish failed after %d retries: %w", d.maxRetries, err)
}

// LogDispatcher is the fallback sink when NATS is unreachable at startup: the
// report still lands in the process log instead of vanishing.
type LogDispatcher struct{}

func (LogDispatcher) Dispatch(_ context.Context, r Report) error {
	log.Printf("Nightly Reporter (log sink): %s", r.Message)
	return nil
}
