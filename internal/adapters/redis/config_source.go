// Package redis serves remote config from a Redis hash. Operators publish
// values with HSET and announce changes on a pub/sub channel.
package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/emiliopalmerini/mvariant/internal/domain"
	"github.com/emiliopalmerini/mvariant/internal/ports"
)

type Options struct {
	Addr     string
	Password string
	DB       int
	// HashKey holds the published values, one field per config key.
	HashKey string
	// DefaultsKey receives the in-app defaults.
	DefaultsKey string
	// Channel carries change notifications.
	Channel string
}

func (o *Options) withDefaults() {
	if o.HashKey == "" {
		o.HashKey = "mvariant:config"
	}
	if o.DefaultsKey == "" {
		o.DefaultsKey = o.HashKey + ":defaults"
	}
	if o.Channel == "" {
		o.Channel = o.HashKey + ":changed"
	}
}

type ConfigSource struct {
	rdb  *goredis.Client
	opts Options
	log  ports.Logger

	mu     sync.Mutex
	staged map[string]domain.Value
}

// NewConfigSource connects and pings Redis.
func NewConfigSource(ctx context.Context, opts Options, log ports.Logger) (*ConfigSource, error) {
	if opts.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	opts.withDefaults()

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &ConfigSource{rdb: rdb, opts: opts, log: log}, nil
}

func (s *ConfigSource) Fetch(ctx context.Context) (ports.FetchResult, error) {
	fields, err := s.rdb.HGetAll(ctx, s.opts.HashKey).Result()
	if err != nil {
		return ports.FetchResult{Status: ports.SourceStatusFailure}, fmt.Errorf("redis hgetall %s: %w", s.opts.HashKey, err)
	}

	values := DecodeHash(fields)
	s.mu.Lock()
	s.staged = values
	s.mu.Unlock()

	return ports.FetchResult{Values: values, Status: ports.SourceStatusSuccess}, nil
}

func (s *ConfigSource) Activate(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.staged == nil {
		return false, nil
	}
	s.staged = nil
	return true, nil
}

func (s *ConfigSource) SetDefaults(ctx context.Context, defaults map[string]domain.Value) error {
	if len(defaults) == 0 {
		return nil
	}
	fields, err := EncodeHash(defaults)
	if err != nil {
		return err
	}
	if err := s.rdb.HSet(ctx, s.opts.DefaultsKey, fields).Err(); err != nil {
		return fmt.Errorf("redis hset %s: %w", s.opts.DefaultsKey, err)
	}
	return nil
}

// Publish stores a value and notifies watchers.
func (s *ConfigSource) Publish(ctx context.Context, key string, v domain.Value) error {
	raw, err := v.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := s.rdb.HSet(ctx, s.opts.HashKey, key, string(raw)).Err(); err != nil {
		return fmt.Errorf("redis hset %s: %w", s.opts.HashKey, err)
	}
	return s.rdb.Publish(ctx, s.opts.Channel, key).Err()
}

// Watch calls onChange for every change notification until ctx is done.
func (s *ConfigSource) Watch(ctx context.Context, onChange func(key string)) error {
	if onChange == nil {
		return fmt.Errorf("onChange callback required")
	}

	sub := s.rdb.Subscribe(ctx, s.opts.Channel)
	// ensures subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				s.log.Debug("remote config changed", "key", m.Payload)
				onChange(m.Payload)
			}
		}
	}()
	return nil
}

func (s *ConfigSource) Close() error {
	return s.rdb.Close()
}

// DecodeHash turns hash fields holding JSON literals into values. Fields that
// are not valid JSON are kept as plain strings.
func DecodeHash(fields map[string]string) map[string]domain.Value {
	values := make(map[string]domain.Value, len(fields))
	for k, raw := range fields {
		values[k] = domain.ParseValue(raw)
	}
	return values
}

func EncodeHash(values map[string]domain.Value) (map[string]interface{}, error) {
	fields := make(map[string]interface{}, len(values))
	for k, v := range values {
		raw, err := v.MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", k, err)
		}
		fields[k] = string(raw)
	}
	return fields, nil
}
