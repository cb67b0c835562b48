package durationx

import (
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	cases := []struct {
		in      string
		want    time.Duration
		wantOK  bool
	}{
		{"30s", 30 * time.Second, true},
		{"5m", 5 * time.Minute, true},
		{"2h", 2 * time.Hour, true},
		{"", 0, false},
		{"30", 0, false},
		{"30ms", 0, false},
		{"-5s", 0, false},
		{"abc", 0, false},
	}
	for _, c := range cases {
		got, ok := Parse(c.in)
		if ok != c.wantOK || got != c.want {
			t.Errorf("Parse(%q) = (%v, %v), want (%v, %v)", c.in, got, ok, c.want, c.wantOK)
		}
	}
}

func TestParseOrFallsBack(t *testing.T) {
	if got := ParseOr("garbage", 10*time.Second); got != 10*time.Second {
		t.Errorf("ParseOr fallback = %v, want 10s", got)
	}
	if got := ParseOr("1h", 10*time.Second); got != time.Hour {
		t.Errorf("ParseOr parsed = %v, want 1h", got)
	}
}
