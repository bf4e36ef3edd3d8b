// Package catalog loads the experiment catalog, preferring the remote config
// snapshot and falling back to the document store.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/emiliopalmerini/mvariant/internal/domain"
	"github.com/emiliopalmerini/mvariant/internal/logger"
	"github.com/emiliopalmerini/mvariant/internal/ports"
)

const DefaultKey = "experiments"

type Source string

const (
	SourceRemoteConfig  Source = "remote_config"
	SourceDocumentStore Source = "document_store"
)

var errEmptyCatalog = errors.New("catalog key is empty")

// SnapshotProvider is the part of remoteconfig.Fetcher the loader needs.
type SnapshotProvider interface {
	FetchAndActivate(ctx context.Context) (*domain.ConfigSnapshot, error)
	Current() *domain.ConfigSnapshot
}

type LoaderOptions struct {
	// Key holding the JSON-encoded experiment array. Defaults to DefaultKey.
	Key    string
	Logger ports.Logger
}

type Loader struct {
	snapshots SnapshotProvider
	documents ports.ExperimentRepository
	key       string
	log       ports.Logger
}

func NewLoader(snapshots SnapshotProvider, documents ports.ExperimentRepository, opts LoaderOptions) *Loader {
	if opts.Key == "" {
		opts.Key = DefaultKey
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Loader{
		snapshots: snapshots,
		documents: documents,
		key:       opts.Key,
		log:       log,
	}
}

// LoadCatalog returns the current experiment list.
func (l *Loader) LoadCatalog(ctx context.Context) ([]domain.Experiment, error) {
	experiments, _, err := l.Load(ctx)
	return experiments, err
}

// Load is LoadCatalog that also reports which source served the catalog.
func (l *Loader) Load(ctx context.Context) ([]domain.Experiment, Source, error) {
	experiments, remoteErr := l.fromSnapshot(ctx)
	if remoteErr == nil {
		return experiments, SourceRemoteConfig, nil
	}
	l.log.Warn("remote catalog unusable, querying document store", "key", l.key, "error", remoteErr)

	experiments, fallbackErr := l.fromDocuments(ctx)
	if fallbackErr == nil {
		return experiments, SourceDocumentStore, nil
	}

	l.log.Error("experiment catalog unavailable", "remote_error", remoteErr, "fallback_error", fallbackErr)
	return nil, "", &domain.CatalogError{Remote: remoteErr, Fallback: fallbackErr}
}

func (l *Loader) fromSnapshot(ctx context.Context) ([]domain.Experiment, error) {
	snap, fetchErr := l.snapshots.FetchAndActivate(ctx)
	if fetchErr != nil {
		snap = l.snapshots.Current()
		if snap == nil {
			return nil, &domain.ConfigError{Kind: domain.ConfigNotInitialized, Err: fetchErr}
		}
		l.log.Debug("using last known-good snapshot for catalog", "status", snap.FetchStatus, "error", fetchErr)
	}

	value, ok := snap.Get(l.key)
	if !ok || value.IsNull() {
		return nil, fmt.Errorf("catalog key %q absent from snapshot", l.key)
	}

	raw, err := catalogBytes(value)
	if err != nil {
		return nil, err
	}

	experiments, err := domain.DecodeCatalog(raw)
	if err != nil {
		return nil, err
	}
	if len(experiments) == 0 {
		return nil, errEmptyCatalog
	}
	return experiments, nil
}

// catalogBytes accepts the catalog either as a JSON string or, for sources
// that already parsed it, as a list value.
func catalogBytes(v domain.Value) ([]byte, error) {
	switch v.Kind() {
	case domain.KindString:
		s, _ := v.AsString()
		if strings.TrimSpace(s) == "" {
			return nil, errEmptyCatalog
		}
		return []byte(s), nil
	case domain.KindList:
		return json.Marshal(v)
	default:
		return nil, fmt.Errorf("catalog key holds %s, expected JSON array", v.Kind())
	}
}

func (l *Loader) fromDocuments(ctx context.Context) ([]domain.Experiment, error) {
	if l.documents == nil {
		return nil, errors.New("no document store configured")
	}

	docs, err := l.documents.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to scan experiment documents: %w", err)
	}

	experiments := make([]domain.Experiment, 0, len(docs))
	for i := range docs {
		if err := docs[i].Validate(); err != nil {
			l.log.Warn("skipping invalid experiment document", "experiment_id", docs[i].ID, "error", err)
			continue
		}
		experiments = append(experiments, docs[i])
	}
	return experiments, nil
}
