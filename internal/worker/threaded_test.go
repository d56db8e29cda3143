package worker

import (
	"testing"
	"time"
)

func TestParseThreadSpec_BareCount(t *testing.T) {
	spec, err := ParseThreadSpec("5")
	if err != nil {
		t.Fatalf("ParseThreadSpec: %v", err)
	}
	if spec.Count != 5 || spec.Horizon != nil {
		t.Fatalf("want {5, nil}, got %+v", spec)
	}
}

func TestParseThreadSpec_WithHorizon(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
	}{
		{"2:30s", 30 * time.Second},
		{"2:5m", 5 * time.Minute},
		{"2:1h", time.Hour},
		{"2:2d", 48 * time.Hour},
	}
	for _, c := range cases {
		spec, err := ParseThreadSpec(c.in)
		if err != nil {
			t.Fatalf("ParseThreadSpec(%q): %v", c.in, err)
		}
		if spec.Horizon == nil || *spec.Horizon != c.want {
			t.Fatalf("ParseThreadSpec(%q): want horizon %v, got %v", c.in, c.want, spec.Horizon)
		}
	}
}

func TestParseThreadSpec_NoneHorizon(t *testing.T) {
	spec, err := ParseThreadSpec("3:none")
	if err != nil {
		t.Fatalf("ParseThreadSpec: %v", err)
	}
	if spec.Count != 3 || spec.Horizon != nil {
		t.Fatalf("want {3, nil}, got %+v", spec)
	}
}

func TestParseThreadSpec_Invalid(t *testing.T) {
	for _, in := range []string{"", "x", "2:", "2:30x", "-1"} {
		if _, err := ParseThreadSpec(in); err == nil {
			t.Errorf("ParseThreadSpec(%q): want error", in)
		}
	}
}

func TestParseThreadSpecs_Multiple(t *testing.T) {
	specs, err := ParseThreadSpecs([]string{"5", "3:1h"})
	if err != nil {
		t.Fatalf("ParseThreadSpecs: %v", err)
	}
	if len(specs) != 2 {
		t.Fatalf("want 2 specs, got %d", len(specs))
	}
}
