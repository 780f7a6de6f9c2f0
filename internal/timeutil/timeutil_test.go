package timeutil

import (
	"testing"
	"time"
)

func TestParseDurationDayAndWeekUnits(t *testing.T) {
	t.Parallel()

	cases := map[string]time.Duration{
		"3d":  3 * 24 * time.Hour,
		"2w":  2 * 7 * 24 * time.Hour,
		"90m": 90 * time.Minute,
	}
	for in, want := range cases {
		got, err := ParseDuration(in)
		if err != nil {
			t.Fatalf("ParseDuration(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseDuration(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestParseRelativeTime(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	got, err := ParseRelativeTime("-3d", now)
	if err != nil {
		t.Fatal(err)
	}
	if want := now.Add(-3 * 24 * time.Hour); !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}

	got, err = ParseRelativeTime("2024-01-02T03:04:05Z", now)
	if err != nil {
		t.Fatal(err)
	}
	if got.Year() != 2024 || got.Month() != time.January {
		t.Fatalf("unexpected parse: %v", got)
	}

	if _, err := ParseRelativeTime("3d", now); err == nil {
		t.Fatal("expected error for unsigned relative time")
	}
}

func TestParseStartFrom(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	if got := ParseStartFrom("-1d", now); got != "2024-05-31T12:00:00Z" {
		t.Fatalf("unexpected relative start: %q", got)
	}
	// opaque tokens pass through untouched
	if got := ParseStartFrom("90020230000000000000001", now); got != "90020230000000000000001" {
		t.Fatalf("expected passthrough, got %q", got)
	}
	if got := ParseStartFrom("", now); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}
