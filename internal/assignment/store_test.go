package assignment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/emiliopalmerini/mvariant/internal/adapters/memory"
	"github.com/emiliopalmerini/mvariant/internal/domain"
)

type fakeRepo struct {
	GetFunc            func(ctx context.Context, key domain.AssignmentKey) (*domain.Assignment, error)
	CreateIfAbsentFunc func(ctx context.Context, a *domain.Assignment) (bool, error)
	PutFunc            func(ctx context.Context, a *domain.Assignment) error
	DeleteFunc         func(ctx context.Context, key domain.AssignmentKey) error

	gets int
}

func (f *fakeRepo) Get(ctx context.Context, key domain.AssignmentKey) (*domain.Assignment, error) {
	f.gets++
	if f.GetFunc != nil {
		return f.GetFunc(ctx, key)
	}
	return nil, nil
}

func (f *fakeRepo) CreateIfAbsent(ctx context.Context, a *domain.Assignment) (bool, error) {
	if f.CreateIfAbsentFunc != nil {
		return f.CreateIfAbsentFunc(ctx, a)
	}
	return true, nil
}

func (f *fakeRepo) Put(ctx context.Context, a *domain.Assignment) error {
	if f.PutFunc != nil {
		return f.PutFunc(ctx, a)
	}
	return nil
}

func (f *fakeRepo) Delete(ctx context.Context, key domain.AssignmentKey) error {
	if f.DeleteFunc != nil {
		return f.DeleteFunc(ctx, key)
	}
	return nil
}

func newAssignment(user, exp, variant string) domain.Assignment {
	return domain.Assignment{UserID: user, ExperimentID: exp, VariantID: variant, AssignedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func TestStore_GetReadsThroughOnce(t *testing.T) {
	stored := newAssignment("u1", "e1", "a")
	repo := &fakeRepo{GetFunc: func(context.Context, domain.AssignmentKey) (*domain.Assignment, error) {
		a := stored
		return &a, nil
	}}
	store := NewStore(repo, Options{})
	key := stored.Key()

	for i := 0; i < 3; i++ {
		got, err := store.Get(context.Background(), key)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got == nil || got.VariantID != "a" {
			t.Fatalf("Get() = %+v, want variant a", got)
		}
	}
	if repo.gets != 1 {
		t.Errorf("repository reads = %d, want 1", repo.gets)
	}
}

func TestStore_GetMissNotCached(t *testing.T) {
	repo := &fakeRepo{}
	store := NewStore(repo, Options{})
	key := domain.AssignmentKey{UserID: "u", ExperimentID: "e"}

	for i := 0; i < 2; i++ {
		got, err := store.Get(context.Background(), key)
		if err != nil || got != nil {
			t.Fatalf("Get() = %+v, %v; want nil, nil", got, err)
		}
	}
	if repo.gets != 2 {
		t.Errorf("repository reads = %d, want 2", repo.gets)
	}
}

func TestStore_GetError(t *testing.T) {
	boom := errors.New("boom")
	store := NewStore(&fakeRepo{GetFunc: func(context.Context, domain.AssignmentKey) (*domain.Assignment, error) {
		return nil, boom
	}}, Options{})

	_, err := store.Get(context.Background(), domain.AssignmentKey{UserID: "u", ExperimentID: "e"})
	var se *domain.StoreError
	if !errors.As(err, &se) || se.Op != "get" {
		t.Fatalf("Get() error = %v, want StoreError op get", err)
	}
	if !errors.Is(err, boom) {
		t.Errorf("Get() error does not wrap cause")
	}
}

func TestStore_CreateWinner(t *testing.T) {
	repo := memory.NewAssignmentRepository()
	store := NewStore(repo, Options{})

	a := newAssignment("u1", "e1", "a")
	got, created, err := store.Create(context.Background(), a)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if !created || got.VariantID != "a" {
		t.Fatalf("Create() = %+v, %v; want variant a, created", got, created)
	}
	if !store.Cached(a.Key()) {
		t.Error("assignment not cached after create")
	}
}

func TestStore_CreateLoserReturnsWinner(t *testing.T) {
	repo := memory.NewAssignmentRepository()
	ctx := context.Background()
	winner := newAssignment("u1", "e1", "a")
	if _, err := repo.CreateIfAbsent(ctx, &winner); err != nil {
		t.Fatal(err)
	}

	store := NewStore(repo, Options{})
	got, created, err := store.Create(ctx, newAssignment("u1", "e1", "b"))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if created {
		t.Error("created = true, want false")
	}
	if got.VariantID != "a" {
		t.Errorf("Create() variant = %q, want winner a", got.VariantID)
	}

	cached, _ := store.Get(ctx, winner.Key())
	if cached == nil || cached.VariantID != "a" {
		t.Errorf("cached = %+v, want winner a", cached)
	}
}

func TestStore_CreateFailureNotCached(t *testing.T) {
	boom := errors.New("unavailable")
	store := NewStore(&fakeRepo{CreateIfAbsentFunc: func(context.Context, *domain.Assignment) (bool, error) {
		return false, boom
	}}, Options{})

	a := newAssignment("u1", "e1", "a")
	got, created, err := store.Create(context.Background(), a)
	if !errors.Is(err, boom) {
		t.Fatalf("Create() error = %v, want %v", err, boom)
	}
	if created {
		t.Error("created = true on failure")
	}
	if got.VariantID != "a" {
		t.Errorf("Create() returned %+v, want the attempted assignment", got)
	}
	if store.Cached(a.Key()) {
		t.Error("failed write was cached")
	}
}

func TestStore_CreateLostWithoutDocument(t *testing.T) {
	store := NewStore(&fakeRepo{CreateIfAbsentFunc: func(context.Context, *domain.Assignment) (bool, error) {
		return false, nil
	}}, Options{})

	_, _, err := store.Create(context.Background(), newAssignment("u", "e", "a"))
	var se *domain.StoreError
	if !errors.As(err, &se) {
		t.Fatalf("Create() error = %v, want StoreError", err)
	}
	if !errors.Is(err, domain.ErrAssignmentLost) {
		t.Errorf("Create() error = %v, want ErrAssignmentLost", err)
	}
}

// The fake returns the document of "a_b"/"c" for any key, as a backend
// addressing rows by document id alone would for "a"/"b_c".
func foreignRowRepo() *fakeRepo {
	return &fakeRepo{
		GetFunc: func(context.Context, domain.AssignmentKey) (*domain.Assignment, error) {
			a := newAssignment("a_b", "c", "x")
			return &a, nil
		},
		CreateIfAbsentFunc: func(context.Context, *domain.Assignment) (bool, error) {
			return false, nil
		},
	}
}

func TestStore_GetRejectsForeignRow(t *testing.T) {
	store := NewStore(foreignRowRepo(), Options{})
	key := domain.AssignmentKey{UserID: "a", ExperimentID: "b_c"}

	got, err := store.Get(context.Background(), key)
	if !errors.Is(err, domain.ErrKeyMismatch) {
		t.Fatalf("Get() = %+v, %v; want ErrKeyMismatch", got, err)
	}
	if store.Cached(key) {
		t.Error("foreign row was cached")
	}
}

func TestStore_CreateRejectsForeignWinner(t *testing.T) {
	store := NewStore(foreignRowRepo(), Options{})
	a := newAssignment("a", "b_c", "y")

	_, created, err := store.Create(context.Background(), a)
	if created {
		t.Error("created = true, want false")
	}
	if !errors.Is(err, domain.ErrAssignmentLost) || !errors.Is(err, domain.ErrKeyMismatch) {
		t.Fatalf("Create() error = %v, want ErrAssignmentLost wrapping ErrKeyMismatch", err)
	}
	if store.Cached(a.Key()) {
		t.Error("foreign winner was cached")
	}
}

func TestStore_ForceOverwrites(t *testing.T) {
	repo := memory.NewAssignmentRepository()
	store := NewStore(repo, Options{})
	ctx := context.Background()

	if _, _, err := store.Create(ctx, newAssignment("u", "e", "a")); err != nil {
		t.Fatal(err)
	}
	if err := store.Force(ctx, newAssignment("u", "e", "b")); err != nil {
		t.Fatalf("Force() error = %v", err)
	}

	got, _ := store.Get(ctx, domain.AssignmentKey{UserID: "u", ExperimentID: "e"})
	if got == nil || got.VariantID != "b" {
		t.Fatalf("Get() after Force = %+v, want variant b", got)
	}
	persisted, _ := repo.Get(ctx, domain.AssignmentKey{UserID: "u", ExperimentID: "e"})
	if persisted == nil || persisted.VariantID != "b" {
		t.Fatalf("persisted = %+v, want variant b", persisted)
	}
}

func TestStore_Reset(t *testing.T) {
	repo := memory.NewAssignmentRepository()
	store := NewStore(repo, Options{})
	ctx := context.Background()
	a := newAssignment("u", "e", "a")

	if _, _, err := store.Create(ctx, a); err != nil {
		t.Fatal(err)
	}
	if err := store.Reset(ctx, a.Key()); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if store.Cached(a.Key()) {
		t.Error("assignment still cached after Reset")
	}
	if repo.Len() != 0 {
		t.Errorf("repository Len() = %d, want 0", repo.Len())
	}
}

func TestStore_CapacityEvictionFallsBackToRepository(t *testing.T) {
	repo := memory.NewAssignmentRepository()
	store := NewStore(repo, Options{CacheCapacity: 1})
	ctx := context.Background()

	first := newAssignment("u1", "e", "a")
	if _, _, err := store.Create(ctx, first); err != nil {
		t.Fatal(err)
	}
	if _, _, err := store.Create(ctx, newAssignment("u2", "e", "b")); err != nil {
		t.Fatal(err)
	}

	got, err := store.Get(ctx, first.Key())
	if err != nil || got == nil || got.VariantID != "a" {
		t.Fatalf("Get() evicted = %+v, %v; want variant a", got, err)
	}
}
