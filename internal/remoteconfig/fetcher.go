package remoteconfig

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/singleflight"

	"github.com/emiliopalmerini/mvariant/internal/domain"
	"github.com/emiliopalmerini/mvariant/internal/logger"
	"github.com/emiliopalmerini/mvariant/internal/ports"
)

const (
	DefaultMinRefreshInterval = time.Hour
	DefaultMaxAttempts        = 3
	DefaultBaseDelay          = time.Second
)

// Options configures a Fetcher. Zero values take the defaults above.
type Options struct {
	MinRefreshInterval time.Duration
	MaxAttempts        int
	BaseDelay          time.Duration
	// Rules validated after every activation. Nil means DefaultRules; pass an
	// empty slice to disable validation.
	Rules  []Rule
	Logger ports.Logger

	now      func() time.Time
	newTimer func() backoff.Timer
}

// Status is a diagnostic view of the last fetch.
type Status struct {
	LastFetchStatus domain.FetchStatus
	LastFetchTime   time.Time
	LastError       error
	Attempts        int64
}

// Fetcher is the resilient fetch-and-activate front of a ConfigSource.
type Fetcher struct {
	source ports.ConfigSource
	opts   Options
	log    ports.Logger

	// lastSuccess holds the unix nanos of the last successful activation and
	// is the freshness gate.
	lastSuccess atomic.Int64
	attempts    atomic.Int64
	flight      singleflight.Group

	mu       sync.RWMutex
	current  *domain.ConfigSnapshot
	defaults map[string]domain.Value
	status   Status

	ctx    context.Context
	cancel context.CancelFunc
}

func NewFetcher(source ports.ConfigSource, opts Options) *Fetcher {
	if opts.MinRefreshInterval <= 0 {
		opts.MinRefreshInterval = DefaultMinRefreshInterval
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = DefaultBaseDelay
	}
	if opts.Rules == nil {
		opts.Rules = DefaultRules()
	}
	if opts.now == nil {
		opts.now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Fetcher{
		source: source,
		opts:   opts,
		log:    log,
		status: Status{LastFetchStatus: domain.FetchStatusNone},
		ctx:    ctx,
		cancel: cancel,
	}
}

// Close cancels any in-flight fetch and its pending retries.
func (f *Fetcher) Close() {
	f.cancel()
}

// SetDefaults registers in-app defaults with the source. Fetched values are
// overlaid on the defaults when a snapshot is built. Before the first
// successful fetch the defaults are served as the current snapshot.
func (f *Fetcher) SetDefaults(ctx context.Context, defaults map[string]domain.Value) error {
	if err := f.source.SetDefaults(ctx, defaults); err != nil {
		return fmt.Errorf("failed to set config defaults: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.defaults = maps.Clone(defaults)
	if f.current == nil {
		f.current = &domain.ConfigSnapshot{
			Values:             maps.Clone(defaults),
			FetchStatus:        domain.FetchStatusNone,
			MinRefreshInterval: f.opts.MinRefreshInterval,
		}
	}
	return nil
}

// Expire reopens the freshness gate so the next FetchAndActivate goes to the
// source. Used when the source pushes a change notification.
func (f *Fetcher) Expire() {
	f.lastSuccess.Store(0)
}

// Current returns the last activated snapshot, or nil before the first one.
func (f *Fetcher) Current() *domain.ConfigSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.current
}

func (f *Fetcher) Status() Status {
	f.mu.RLock()
	defer f.mu.RUnlock()
	s := f.status
	s.Attempts = f.attempts.Load()
	return s
}

// FetchAndActivate returns a fresh snapshot, fetching from the source only
// when the freshness gate has expired. The network work runs on a background
// goroutine; ctx only bounds how long the caller waits for it.
func (f *Fetcher) FetchAndActivate(ctx context.Context) (*domain.ConfigSnapshot, error) {
	if snap := f.freshSnapshot(); snap != nil {
		return snap, nil
	}

	ch := f.flight.DoChan("fetch", func() (interface{}, error) {
		if snap := f.freshSnapshot(); snap != nil {
			return snap, nil
		}
		return f.fetch(f.ctx)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*domain.ConfigSnapshot), nil
	}
}

func (f *Fetcher) freshSnapshot() *domain.ConfigSnapshot {
	last := f.lastSuccess.Load()
	if last == 0 {
		return nil
	}
	if f.opts.now().Sub(time.Unix(0, last)) >= f.opts.MinRefreshInterval {
		return nil
	}
	return f.Current()
}

func (f *Fetcher) fetch(ctx context.Context) (*domain.ConfigSnapshot, error) {
	var (
		values  map[string]domain.Value
		attempt int
	)

	operation := func() error {
		attempt++
		f.attempts.Add(1)

		res, err := f.source.Fetch(ctx)
		if err != nil {
			return &domain.ConfigError{Kind: domain.ConfigFetchFailed, Err: err}
		}
		if res.Status != ports.SourceStatusSuccess {
			return &domain.ConfigError{Kind: domain.ConfigFetchFailed, Reason: fmt.Sprintf("source status %s", res.Status)}
		}

		activated, err := f.source.Activate(ctx)
		if err != nil {
			return &domain.ConfigError{Kind: domain.ConfigActivationFailed, Err: err}
		}
		if !activated {
			return &domain.ConfigError{Kind: domain.ConfigActivationFailed, Reason: "source reported no activation"}
		}

		values = res.Values
		return nil
	}

	notify := func(err error, next time.Duration) {
		f.log.Warn("config fetch attempt failed", "attempt", attempt, "max_attempts", f.opts.MaxAttempts, "retry_in", next, "error", err)
	}

	var timer backoff.Timer
	if f.opts.newTimer != nil {
		timer = f.opts.newTimer()
	}

	err := backoff.RetryNotifyWithTimer(operation, f.backOff(ctx), notify, timer)
	if err != nil {
		var cfgErr error
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			cfgErr = &domain.ConfigError{Kind: domain.ConfigFetchFailed, Attempts: attempt, Err: err}
		} else {
			cfgErr = &domain.ConfigError{Kind: domain.ConfigMaxRetriesExceeded, Attempts: attempt, Err: err}
		}
		f.recordFailure(cfgErr)
		f.log.Error("config fetch failed, serving last known-good snapshot", "attempts", attempt, "error", err)
		return nil, cfgErr
	}

	now := f.opts.now()
	snap := f.buildSnapshot(values, now)
	if err := Validate(snap.Values, f.opts.Rules); err != nil {
		f.recordFailure(err)
		f.log.Error("rejected invalid config snapshot", "error", err)
		return nil, err
	}

	f.mu.Lock()
	f.current = snap
	f.status = Status{LastFetchStatus: domain.FetchStatusSuccess, LastFetchTime: now}
	f.mu.Unlock()
	f.lastSuccess.Store(now.UnixNano())

	f.log.Info("config snapshot activated", "keys", len(snap.Values), "attempts", attempt)
	return snap, nil
}

func (f *Fetcher) backOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = f.opts.BaseDelay
	exp.RandomizationFactor = 0
	exp.Multiplier = 2
	exp.MaxInterval = time.Duration(math.MaxInt64)
	exp.MaxElapsedTime = 0
	exp.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(f.opts.MaxAttempts-1)), ctx)
}

func (f *Fetcher) buildSnapshot(values map[string]domain.Value, now time.Time) *domain.ConfigSnapshot {
	f.mu.RLock()
	merged := maps.Clone(f.defaults)
	f.mu.RUnlock()

	if merged == nil {
		merged = make(map[string]domain.Value, len(values))
	}
	maps.Copy(merged, values)

	return &domain.ConfigSnapshot{
		Values:             merged,
		FetchedAt:          now,
		FetchStatus:        domain.FetchStatusSuccess,
		MinRefreshInterval: f.opts.MinRefreshInterval,
	}
}

func (f *Fetcher) recordFailure(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current != nil && !f.current.FetchedAt.IsZero() {
		f.current = f.current.WithStatus(domain.FetchStatusStale)
	}
	f.status = Status{
		LastFetchStatus: domain.FetchStatusFailure,
		LastFetchTime:   f.opts.now(),
		LastError:       err,
	}
}
