package redis

import (
	"context"
	"testing"

	"github.com/emiliopalmerini/mvariant/internal/domain"
	"github.com/emiliopalmerini/mvariant/internal/logger"
)

func TestDecodeHash(t *testing.T) {
	got := DecodeHash(map[string]string{
		"max_books_limit":         "50",
		"network_timeout_seconds": "2.5",
		"trial":                   "true",
		"banner":                  `"Save 20%"`,
		"plain":                   "not json",
		"experiments":             `[{"id":"pricing_v2","status":"inactive","variants":[]}]`,
	})

	if n, ok := got["max_books_limit"].AsInt(); !ok || n != 50 {
		t.Errorf("max_books_limit = %v, want int 50", got["max_books_limit"])
	}
	if f, ok := got["network_timeout_seconds"].AsFloat(); !ok || f != 2.5 {
		t.Errorf("network_timeout_seconds = %v, want 2.5", got["network_timeout_seconds"])
	}
	if b, ok := got["trial"].AsBool(); !ok || !b {
		t.Errorf("trial = %v, want true", got["trial"])
	}
	if s, ok := got["banner"].AsString(); !ok || s != "Save 20%" {
		t.Errorf("banner = %v", got["banner"])
	}
	if s, ok := got["plain"].AsString(); !ok || s != "not json" {
		t.Errorf("plain = %v, want raw string", got["plain"])
	}
	if got["experiments"].Kind() != domain.KindList {
		t.Errorf("experiments kind = %s, want list", got["experiments"].Kind())
	}
}

func TestEncodeHash_RoundTrip(t *testing.T) {
	in := map[string]domain.Value{
		"limit": domain.IntValue(10),
		"title": domain.StringValue("hi"),
	}
	fields, err := EncodeHash(in)
	if err != nil {
		t.Fatal(err)
	}

	raw := make(map[string]string, len(fields))
	for k, v := range fields {
		raw[k] = v.(string)
	}
	out := DecodeHash(raw)
	for k, v := range in {
		if !out[k].Equal(v) {
			t.Errorf("%s = %v, want %v", k, out[k], v)
		}
	}
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{}
	o.withDefaults()
	if o.HashKey != "mvariant:config" || o.DefaultsKey != "mvariant:config:defaults" || o.Channel != "mvariant:config:changed" {
		t.Errorf("unexpected defaults %+v", o)
	}
}

func TestNewConfigSource_RequiresAddr(t *testing.T) {
	if _, err := NewConfigSource(context.Background(), Options{}, logger.Nop()); err == nil {
		t.Fatal("expected error without addr")
	}
}
