package experiment

import (
	"context"
	"testing"

	"github.com/emiliopalmerini/mvariant/internal/domain"
)

func TestTypedGetters(t *testing.T) {
	fx := newFixture(t, pricingV2())
	ctx := context.Background()
	if err := fx.svc.ForceAssignment(ctx, "pricing_v2", "u1", "B"); err != nil {
		t.Fatal(err)
	}

	if got := fx.svc.Float(ctx, "pricing_v2", "u1", "price", 0); got != 3.99 {
		t.Errorf("Float(price) = %v, want 3.99", got)
	}
	if got := fx.svc.Float(ctx, "pricing_v2", "u1", "max_books", 0); got != 20 {
		t.Errorf("Float(max_books) = %v, want 20", got)
	}
	if got := fx.svc.Int(ctx, "pricing_v2", "u1", "max_books", 5); got != 20 {
		t.Errorf("Int(max_books) = %v, want 20", got)
	}
	if got := fx.svc.Int(ctx, "pricing_v2", "u1", "price", 5); got != 5 {
		t.Errorf("Int(price) = %v, want default 5 for a float", got)
	}
	if got := fx.svc.Bool(ctx, "pricing_v2", "u1", "trial", false); !got {
		t.Error("Bool(trial) = false, want true")
	}
	if got := fx.svc.String(ctx, "pricing_v2", "u1", "banner", ""); got != "Save 20%" {
		t.Errorf("String(banner) = %q", got)
	}
	if got := fx.svc.String(ctx, "pricing_v2", "u1", "missing", "fallback"); got != "fallback" {
		t.Errorf("String(missing) = %q, want fallback", got)
	}
}

func TestTypedGetters_DefaultWhenNotRunning(t *testing.T) {
	fx := newFixture(t, pricingV2())
	ctx := context.Background()

	def := domain.StringValue("d")
	if got := fx.svc.Value(ctx, "nonexistent", "u1", "k", def); !got.Equal(def) {
		t.Errorf("Value() = %v, want default", got)
	}
	if got := fx.svc.Int(ctx, "", "u1", "k", 7); got != 7 {
		t.Errorf("Int() with invalid args = %d, want 7", got)
	}
}
