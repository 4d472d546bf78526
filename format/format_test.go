package format

import (
	"math"
	"testing"
	"time"
)

func TestHumanNumber(t *testing.T) {
	type testCase struct {
		input    uint64
		expected string
	}

	testCases := []testCase{
		{0, "0"},
		{999, "999"},
		{1000, "1.00K"},
		{1_250_000, "1.25M"},
		{12_500_000, "12.5M"},
		{125_000_000, "125M"},
		{3_000_000_000, "3.00B"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			if result := HumanNumber(tc.input); result != tc.expected {
				t.Errorf("Expected %s, got %s", tc.expected, result)
			}
		})
	}
}

func TestHumanBytes(t *testing.T) {
	cases := map[int64]string{
		0:             "0 B",
		1000:          "1000 B",
		1500:          "1.5 KB",
		2_500_000:     "2.5 MB",
		7_200_000_000: "7.2 GB",
	}

	for in, want := range cases {
		if got := HumanBytes(in); got != want {
			t.Errorf("HumanBytes(%d) = %s, want %s", in, got, want)
		}
	}
}

func TestPerplexity(t *testing.T) {
	if got := Perplexity(math.Inf(1)); got != "inf" {
		t.Errorf("got %s, want inf", got)
	}
	if got := Perplexity(math.E); got != "2.72" {
		t.Errorf("got %s, want 2.72", got)
	}
}

func TestStepTime(t *testing.T) {
	if got := StepTime(1250 * time.Millisecond); got != "1.25s" {
		t.Errorf("got %s, want 1.25s", got)
	}
}

func TestHumanTime(t *testing.T) {
	now := time.Now()
	times := map[string]time.Time{
		"Never":                  {},
		"2 minutes ago":          now.Add(-2*time.Minute - time.Second),
		"About an hour from now": now.Add(time.Hour + time.Minute),
	}
	for want, tm := range times {
		if got := HumanTime(tm, "Never"); got != want {
			t.Errorf("HumanTime(%v) = %q, want %q", tm, got, want)
		}
	}

	durations := map[time.Duration]string{
		time.Second:         "1 second",
		45 * time.Second:    "45 seconds",
		90 * time.Second:    "About a minute",
		5 * time.Hour:       "5 hours",
		72 * time.Hour:      "3 days",
		21 * 24 * time.Hour: "3 weeks",
		90 * 24 * time.Hour: "3 months",
	}
	for d, want := range durations {
		if got := HumanDuration(d); got != want {
			t.Errorf("HumanDuration(%v) = %q, want %q", d, got, want)
		}
	}
}
