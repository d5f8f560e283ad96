package codes

import (
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// RollingCode
// ---------------------------------------------------------------------------

func TestRollingCode_StableWithinWindow(t *testing.T) {
	g := newTestGenerator(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	a := g.RollingCode("code-abc", base)
	b := g.RollingCode("code-abc", base.Add(29*time.Second))
	if a != b {
		t.Errorf("codes differ within one window: %s vs %s", a, b)
	}

	c := g.RollingCode("code-abc", base.Add(30*time.Second))
	if a == c {
		t.Error("codes identical across adjacent windows")
	}
}

func TestRollingCode_SixDigits(t *testing.T) {
	g := newTestGenerator(t)

	code := g.RollingCode("code-abc", time.Now())
	if len(code) != 6 {
		t.Errorf("len = %d, want 6", len(code))
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			t.Errorf("code %q contains non-digit %q", code, r)
		}
	}
}

func TestRollingCode_KeyedByBaseCode(t *testing.T) {
	g := newTestGenerator(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Two passcodes must not share a rolling sequence
	if g.RollingCode("code-abc", now) == g.RollingCode("code-xyz", now) {
		t.Error("different base codes produced the same rolling code")
	}
}

// ---------------------------------------------------------------------------
// ValidateRolling
// ---------------------------------------------------------------------------

func TestValidateRolling_AcceptsAdjacentWindows(t *testing.T) {
	g := newTestGenerator(t)
	now := time.Date(2026, 3, 1, 12, 0, 15, 0, time.UTC)

	cases := []struct {
		name   string
		offset time.Duration
		want   bool
	}{
		{"current window", 0, true},
		{"previous window", -30 * time.Second, true},
		{"next window", 30 * time.Second, true},
		{"two windows back", -60 * time.Second, false},
		{"two windows ahead", 60 * time.Second, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			candidate := g.RollingCode("code-abc", now.Add(tc.offset))
			if got := g.ValidateRolling(candidate, "code-abc", now); got != tc.want {
				t.Errorf("ValidateRolling = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestValidateRolling_RejectsWrongBaseCode(t *testing.T) {
	g := newTestGenerator(t)
	now := time.Now()

	candidate := g.RollingCode("code-abc", now)
	if g.ValidateRolling(candidate, "code-xyz", now) {
		t.Error("accepted a rolling code derived from a different base code")
	}
}

func TestValidateRolling_RejectsGarbage(t *testing.T) {
	g := newTestGenerator(t)

	if g.ValidateRolling("", "code-abc", time.Now()) {
		t.Error("accepted empty candidate")
	}
	if g.ValidateRolling("abc123", "code-abc", time.Now()) {
		t.Error("accepted non-derived candidate")
	}
}
