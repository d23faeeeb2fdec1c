package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/lib/pq"

	"github.com/GriffinCanCode/TabSessions/backend/internal/kv"
)

// DefaultChannel is the NOTIFY channel used when none is configured.
const DefaultChannel = "kv_changes"

const (
	minReconnect = 10 * time.Second
	maxReconnect = time.Minute

	// maxPayload stays under the 8000-byte NOTIFY limit.
	maxPayload = 7900
)

// notification is the NOTIFY payload. Values too large for NOTIFY are left
// out and the receiver reads the current value back from the table.
type notification struct {
	kv.Change
	Trimmed bool `json:"trimmed,omitempty"`
}

// Feed broadcasts changes with pg_notify and receives them with a pq.Listener.
// Every Subscribe opens its own listener connection from dsn.
type Feed struct {
	db      *sql.DB
	store   *Store
	dsn     string
	channel string
	onError func(error)
}

// NewFeed creates a feed. onError receives listener and decoding errors; it may be nil.
func NewFeed(db *sql.DB, dsn, channel string, onError func(error)) *Feed {
	if channel == "" {
		channel = DefaultChannel
	}
	if onError == nil {
		onError = func(error) {}
	}
	return &Feed{db: db, store: New(db), dsn: dsn, channel: channel, onError: onError}
}

func (f *Feed) Publish(ctx context.Context, change kv.Change) error {
	payload, err := encodeNotification(change)
	if err != nil {
		return err
	}
	if _, err := f.db.ExecContext(ctx, "SELECT pg_notify($1, $2)", f.channel, payload); err != nil {
		return fmt.Errorf("notifying %s: %w", f.channel, err)
	}
	return nil
}

func encodeNotification(change kv.Change) (string, error) {
	payload, err := sonic.MarshalString(notification{Change: change})
	if err != nil {
		return "", fmt.Errorf("encoding change: %w", err)
	}
	if len(payload) <= maxPayload {
		return payload, nil
	}

	slim := notification{Change: kv.Change{Key: change.Key, Source: change.Source, At: change.At}, Trimmed: true}
	payload, err = sonic.MarshalString(slim)
	if err != nil {
		return "", fmt.Errorf("encoding change: %w", err)
	}
	if len(payload) > maxPayload {
		return "", fmt.Errorf("change for key of %d bytes exceeds NOTIFY limit", len(change.Key))
	}
	return payload, nil
}

// decode restores a notification, reading trimmed values back from the store.
func (f *Feed) decode(ctx context.Context, payload string) (kv.Change, error) {
	var n notification
	if err := sonic.UnmarshalString(payload, &n); err != nil {
		return kv.Change{}, err
	}
	if !n.Trimmed {
		return n.Change, nil
	}
	value, ok, err := f.store.Get(ctx, n.Key)
	if err != nil {
		return kv.Change{}, err
	}
	if ok {
		n.NewValue = &value
	}
	return n.Change, nil
}

func (f *Feed) Subscribe(fn func(kv.Change)) (func(), error) {
	listener := pq.NewListener(f.dsn, minReconnect, maxReconnect, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			f.onError(err)
		}
	})
	if err := listener.Listen(f.channel); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("listening on %s: %w", f.channel, err)
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			case n, ok := <-listener.Notify:
				if !ok {
					return
				}
				// nil after a reconnect
				if n == nil {
					continue
				}
				change, err := f.decode(context.Background(), n.Extra)
				if err != nil {
					f.onError(err)
					continue
				}
				fn(change)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			_ = listener.Close()
		})
	}, nil
}
