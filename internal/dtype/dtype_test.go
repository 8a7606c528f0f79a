package dtype

import "testing"

func TestPromoteSameCategory(t *testing.T) {
	if got := Promote(I32, I32); got != I32 {
		t.Fatalf("got %v", got)
	}
}

func TestPromoteBoolToInt(t *testing.T) {
	if got := Promote(B8, I32); got != I32 {
		t.Fatalf("got %v", got)
	}
}

func TestPromoteIntToFloatDominates(t *testing.T) {
	if got := Promote(I32, F32); got != F32 {
		t.Fatalf("got %v", got)
	}
	if got := Promote(B8, F32); got != F32 {
		t.Fatalf("got %v", got)
	}
}

func TestParseRoundTrip(t *testing.T) {
	for _, d := range []Dtype{F32, I32, B8} {
		got, err := Parse(d.String())
		if err != nil {
			t.Fatalf("parse %s: %v", d, err)
		}
		if got != d {
			t.Fatalf("got %v, want %v", got, d)
		}
	}
}

func TestParseUnknown(t *testing.T) {
	if _, err := Parse("f64"); err == nil {
		t.Fatal("expected error for unknown dtype")
	}
}
