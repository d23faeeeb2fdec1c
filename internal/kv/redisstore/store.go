// Package redisstore implements the shared kv store and change feed on Redis.
package redisstore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"github.com/GriffinCanCode/TabSessions/backend/internal/kv"
)

// DefaultPrefix namespaces every key written by the store.
const DefaultPrefix = "tabsessions:"

const scanBatch = 256

// Store keeps each kv entry in its own Redis string key.
type Store struct {
	client redis.UniversalClient
	prefix string
}

// New creates a Redis-backed store. An empty prefix selects DefaultPrefix.
func New(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix}
}

// Dial connects to addr and verifies the connection with a ping.
func Dial(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func (s *Store) key(k string) string {
	return s.prefix + k
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, &kv.StorageError{Op: "get", Key: key, Err: err}
	}
	return val, true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		return &kv.StorageError{Op: "set", Key: key, Err: err}
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return &kv.StorageError{Op: "remove", Key: key, Err: err}
	}
	return nil
}

// Keys scans the prefix and returns unprefixed keys in lexical order.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	raw, err := s.scan(ctx)
	if err != nil {
		return nil, &kv.StorageError{Op: "keys", Err: err}
	}
	keys := make([]string, 0, len(raw))
	for _, k := range raw {
		keys = append(keys, strings.TrimPrefix(k, s.prefix))
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Store) Len(ctx context.Context) (int, error) {
	raw, err := s.scan(ctx)
	if err != nil {
		return 0, &kv.StorageError{Op: "len", Err: err}
	}
	return len(raw), nil
}

func (s *Store) Clear(ctx context.Context) error {
	raw, err := s.scan(ctx)
	if err != nil {
		return &kv.StorageError{Op: "clear", Err: err}
	}
	if len(raw) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, raw...).Err(); err != nil {
		return &kv.StorageError{Op: "clear", Err: err}
	}
	return nil
}

func (s *Store) scan(ctx context.Context) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := s.client.Scan(ctx, cursor, s.prefix+"*", scanBatch).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}

// Feed broadcasts kv changes over a Redis pub/sub channel.
type Feed struct {
	client  redis.UniversalClient
	channel string
	onError func(error)
}

// NewFeed creates a feed on the channel "<prefix>changes".
// onError receives payloads that could not be decoded; it may be nil.
func NewFeed(client redis.UniversalClient, prefix string, onError func(error)) *Feed {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if onError == nil {
		onError = func(error) {}
	}
	return &Feed{client: client, channel: prefix + "changes", onError: onError}
}

// Channel returns the pub/sub channel name.
func (f *Feed) Channel() string {
	return f.channel
}

func (f *Feed) Publish(ctx context.Context, change kv.Change) error {
	payload, err := sonic.Marshal(change)
	if err != nil {
		return err
	}
	return f.client.Publish(ctx, f.channel, payload).Err()
}

// Subscribe starts a goroutine that decodes messages until cancel is called.
func (f *Feed) Subscribe(fn func(kv.Change)) (func(), error) {
	ctx := context.Background()
	ps := f.client.Subscribe(ctx, f.channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range ps.Channel() {
			var change kv.Change
			if err := sonic.UnmarshalString(msg.Payload, &change); err != nil {
				f.onError(err)
				continue
			}
			fn(change)
		}
	}()

	return func() {
		_ = ps.Close()
		<-done
	}, nil
}
