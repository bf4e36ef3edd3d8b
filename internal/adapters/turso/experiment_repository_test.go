package turso_test

import (
	"context"
	"testing"
	"time"

	"github.com/emiliopalmerini/mvariant/internal/adapters/turso"
	"github.com/emiliopalmerini/mvariant/internal/domain"
)

func TestExperimentRepository(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	repo := turso.NewExperimentRepository(db)

	// List should be empty initially
	list, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected 0 experiments, got %d", len(list))
	}

	exp := &domain.Experiment{
		ID:     "pricing_v2",
		Status: domain.StatusActive,
		Variants: []domain.Variant{
			{ID: "A", Name: "Control", Weight: 0.5, Config: map[string]domain.Value{"price": domain.FloatValue(4.99)}},
			{ID: "B", Name: "Discount", Weight: 0.5, Config: map[string]domain.Value{"max_books": domain.IntValue(20)}},
		},
	}
	if err := repo.Upsert(ctx, exp); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	exp.Status = domain.StatusInactive
	if err := repo.Upsert(ctx, exp); err != nil {
		t.Fatalf("Upsert (update) failed: %v", err)
	}

	list, err = repo.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 experiment, got %d", len(list))
	}
	if list[0].Status != domain.StatusInactive {
		t.Errorf("expected updated status inactive, got %s", list[0].Status)
	}
	n, ok := list[0].Variants[1].Config["max_books"].AsInt()
	if !ok || n != 20 {
		t.Errorf("expected max_books int 20, got %v", list[0].Variants[1].Config["max_books"])
	}
}

func TestExperimentRepository_SkipsInvalidDocuments(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	repo := turso.NewExperimentRepository(db)

	var skipped []string
	repo.OnInvalid = func(id string, err error) { skipped = append(skipped, id) }

	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := db.ExecContext(ctx, `INSERT INTO experiment_documents (id, status, document, updated_at) VALUES ('broken', 'active', '{not json', ?)`, now); err != nil {
		t.Fatal(err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO experiment_documents (id, status, document, updated_at) VALUES ('empty', 'active', '{"id":"empty","status":"active","variants":[]}', ?)`, now); err != nil {
		t.Fatal(err)
	}
	if err := repo.Upsert(ctx, &domain.Experiment{ID: "ok", Status: domain.StatusInactive}); err != nil {
		t.Fatal(err)
	}

	list, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 1 || list[0].ID != "ok" {
		t.Fatalf("expected only ok, got %+v", list)
	}
	if len(skipped) != 2 {
		t.Errorf("expected 2 skipped documents, got %v", skipped)
	}
}

func TestExperimentRepository_UpsertRejectsInvalid(t *testing.T) {
	repo := turso.NewExperimentRepository(testDB(t))
	err := repo.Upsert(context.Background(), &domain.Experiment{ID: "x", Status: domain.StatusActive})
	if err == nil {
		t.Fatal("expected validation error for active experiment without variants")
	}
}
