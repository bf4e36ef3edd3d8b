package domain

import "time"

type FetchStatus string

const (
	FetchStatusNone    FetchStatus = "no_fetch_yet"
	FetchStatusSuccess FetchStatus = "success"
	FetchStatusFailure FetchStatus = "failure"
	FetchStatusStale   FetchStatus = "stale"
)

// ConfigSnapshot is an activated remote configuration payload. Snapshots are
// replaced wholesale and never mutated after construction.
type ConfigSnapshot struct {
	Values             map[string]Value
	FetchedAt          time.Time
	FetchStatus        FetchStatus
	MinRefreshInterval time.Duration
}

func (s *ConfigSnapshot) Get(key string) (Value, bool) {
	if s == nil {
		return Value{}, false
	}
	v, ok := s.Values[key]
	return v, ok
}

// Fresh reports whether the snapshot is still inside its refresh interval.
func (s *ConfigSnapshot) Fresh(now time.Time) bool {
	if s == nil || s.FetchedAt.IsZero() {
		return false
	}
	return now.Sub(s.FetchedAt) < s.MinRefreshInterval
}

// WithStatus returns a shallow copy carrying a different fetch status.
func (s *ConfigSnapshot) WithStatus(status FetchStatus) *ConfigSnapshot {
	cp := *s
	cp.FetchStatus = status
	return &cp
}
