// Package remoteconfig fetches, activates and validates snapshots from a
// remote key/value config source.
//
// A Fetcher guards the source with a freshness gate: a snapshot younger than
// MinRefreshInterval is served from memory, and concurrent refreshes collapse
// into a single outstanding fetch. Failed fetches are retried with
// exponential backoff up to MaxAttempts; after that the last known-good
// snapshot keeps being served and is marked stale.
package remoteconfig
