package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/emiliopalmerini/mvariant/internal/domain"
)

func TestAssignmentRepository_CreateIfAbsentOnce(t *testing.T) {
	repo := NewAssignmentRepository()
	ctx := context.Background()

	var created atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a := &domain.Assignment{UserID: "u1", ExperimentID: "e1", VariantID: string(rune('a' + i%3)), AssignedAt: time.Now()}
			ok, err := repo.CreateIfAbsent(ctx, a)
			if err != nil {
				t.Errorf("CreateIfAbsent() error = %v", err)
			}
			if ok {
				created.Add(1)
			}
		}(i)
	}
	wg.Wait()

	if got := created.Load(); got != 1 {
		t.Fatalf("created = %d, want 1", got)
	}
	if repo.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", repo.Len())
	}
}

func TestAssignmentRepository_GetMissIsNil(t *testing.T) {
	repo := NewAssignmentRepository()
	got, err := repo.Get(context.Background(), domain.AssignmentKey{UserID: "u", ExperimentID: "e"})
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != nil {
		t.Fatalf("Get() = %+v, want nil", got)
	}
}

func TestAssignmentRepository_PutAndDelete(t *testing.T) {
	repo := NewAssignmentRepository()
	ctx := context.Background()
	key := domain.AssignmentKey{UserID: "u", ExperimentID: "e"}

	if err := repo.Put(ctx, &domain.Assignment{UserID: "u", ExperimentID: "e", VariantID: "a"}); err != nil {
		t.Fatal(err)
	}
	if err := repo.Put(ctx, &domain.Assignment{UserID: "u", ExperimentID: "e", VariantID: "b"}); err != nil {
		t.Fatal(err)
	}
	got, _ := repo.Get(ctx, key)
	if got == nil || got.VariantID != "b" {
		t.Fatalf("Get() = %+v, want variant b", got)
	}

	if err := repo.Delete(ctx, key); err != nil {
		t.Fatal(err)
	}
	if got, _ := repo.Get(ctx, key); got != nil {
		t.Fatalf("Get() after Delete = %+v, want nil", got)
	}
}

func TestExperimentRepository_ListSorted(t *testing.T) {
	repo := NewExperimentRepository(domain.Experiment{ID: "b"}, domain.Experiment{ID: "a"})
	if err := repo.Upsert(context.Background(), &domain.Experiment{ID: "c"}); err != nil {
		t.Fatal(err)
	}

	got, err := repo.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[0].ID != "a" || got[1].ID != "b" || got[2].ID != "c" {
		t.Fatalf("List() = %+v, want a,b,c", got)
	}
}

func TestConfigSource_FetchThenActivate(t *testing.T) {
	src := NewConfigSource(map[string]domain.Value{"k": domain.IntValue(1)})
	ctx := context.Background()

	if ok, _ := src.Activate(ctx); ok {
		t.Fatal("Activate() before Fetch = true, want false")
	}
	res, err := src.Fetch(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := res.Values["k"].AsInt(); v != 1 {
		t.Fatalf("fetched k = %v, want 1", res.Values["k"])
	}
	if ok, _ := src.Activate(ctx); !ok {
		t.Fatal("Activate() = false, want true")
	}
	if v, _ := src.Active()["k"].AsInt(); v != 1 {
		t.Fatalf("active k = %v, want 1", src.Active()["k"])
	}
}

func TestAssignmentRepository_CountByVariant(t *testing.T) {
	repo := NewAssignmentRepository()
	ctx := context.Background()

	for i, v := range []string{"A", "B", "A"} {
		a := &domain.Assignment{UserID: string(rune('a' + i)), ExperimentID: "e1", VariantID: v}
		if _, err := repo.CreateIfAbsent(ctx, a); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := repo.CreateIfAbsent(ctx, &domain.Assignment{UserID: "a", ExperimentID: "e2", VariantID: "A"}); err != nil {
		t.Fatal(err)
	}

	counts, err := repo.CountByVariant(ctx, "e1")
	if err != nil {
		t.Fatal(err)
	}
	if counts["A"] != 2 || counts["B"] != 1 {
		t.Errorf("counts = %v, want A:2 B:1", counts)
	}
}

func TestConfigSource_EmptyActivates(t *testing.T) {
	src := NewConfigSource(nil)
	ctx := context.Background()

	if _, err := src.Fetch(ctx); err != nil {
		t.Fatal(err)
	}
	if ok, _ := src.Activate(ctx); !ok {
		t.Fatal("Activate() after empty Fetch = false, want true")
	}
}

func TestAssignmentRepository_UnderscoreIDsDoNotCollide(t *testing.T) {
	repo := NewAssignmentRepository()
	ctx := context.Background()

	for _, a := range []*domain.Assignment{
		{UserID: "a", ExperimentID: "b_c", VariantID: "X"},
		{UserID: "a_b", ExperimentID: "c", VariantID: "Y"},
	} {
		ok, err := repo.CreateIfAbsent(ctx, a)
		if err != nil || !ok {
			t.Fatalf("CreateIfAbsent(%s/%s) = %v, %v; want true, nil", a.UserID, a.ExperimentID, ok, err)
		}
	}

	got, _ := repo.Get(ctx, domain.AssignmentKey{UserID: "a_b", ExperimentID: "c"})
	if got == nil || got.VariantID != "Y" {
		t.Errorf("Get(a_b/c) = %+v, want variant Y", got)
	}
}
