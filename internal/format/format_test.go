package format

import (
	"regexp"
	"testing"
	"time"
)

func TestCompileLiteralAndPercent(t *testing.T) {
	p := Compile("abc%%def")
	if len(p.Segments) != 1 || p.Segments[0].Tag != TagLiteral || p.Segments[0].Text != "abc%def" {
		t.Fatalf("unexpected plan: %+v", p.Segments)
	}
}

func TestCompileTrailingPercentIsLiteral(t *testing.T) {
	p := Compile("rate%")
	if len(p.Segments) != 1 || p.Segments[0].Text != "rate%" {
		t.Fatalf("trailing %% not literal: %+v", p.Segments)
	}
}

func TestCompileUnknownPassesThrough(t *testing.T) {
	p := Compile("%Q")
	if len(p.Segments) != 1 || p.Segments[0].Tag != TagUnknown {
		t.Fatalf("unknown sequence not passed through: %+v", p.Segments)
	}
}

func TestCompileShowingFlags(t *testing.T) {
	p := Compile("%t %b %r")
	if !p.ShowTimer || !p.ShowBytes || !p.ShowRate {
		t.Fatalf("showing_* flags not derived: %+v", p)
	}
}

func TestRoundTripReparseStability(t *testing.T) {
	f := "%b %t %r %p %e"
	p1 := Compile(f)
	p2 := Compile(f)
	if len(p1.Segments) != len(p2.Segments) {
		t.Fatalf("reparse of identical format produced different plan lengths")
	}
	for i := range p1.Segments {
		if p1.Segments[i].Tag != p2.Segments[i].Tag {
			t.Fatalf("segment %d tag mismatch: %v vs %v", i, p1.Segments[i].Tag, p2.Segments[i].Tag)
		}
	}
}

// TestS4FormatComposition exercises a representative end-to-end
// scenario: a 1000-byte transfer at 100 B/s, format '%b %t %r %p %e',
// sampled at t=5s (500 bytes transferred).
func TestS4FormatComposition(t *testing.T) {
	plan := Compile("%b %t %r %p %e")
	snap := Snapshot{
		Elapsed:     5 * time.Second,
		Rate:        100,
		AvgRate:     100,
		Count:       500,
		SizeKnown:   true,
		Size:        1000,
		Transferred: 500,
		Percentage:  50,
		ETASeconds:  5,
		ETAValid:    true,
	}
	out, _ := Render(plan, snap, 200, 0)
	re := regexp.MustCompile(`^\s*500\s*B\s+0:00:0[45]\s+\[\s*\d+(\.\d+)?\s*B/s\]\s+\[=*>?\s*\]\s*50%\s+ETA\s+0:00:0[45]\s*$`)
	if !re.MatchString(out) {
		t.Fatalf("rendered %q does not match expected S4 pattern", out)
	}
}

func TestWidthDisciplinePadsOnShrink(t *testing.T) {
	plan := Compile("%b")
	snap := Snapshot{Count: 10000000}
	long, longWidth := Render(plan, snap, 200, 0)
	short, _ := Render(plan, Snapshot{Count: 0}, 200, longWidth)
	if len(short) < len(long) {
		t.Fatalf("expected shrink-padding to keep overall length >= previous, got %q vs %q", short, long)
	}
}

// TestRateGaugeFillsFromRateNotFromPercentage checks that --rate-gauge
// bars are driven by rate/max-rate, not by the size-completion
// percentage (or, size unknown, the oscillator counter it would
// otherwise fall back to).
func TestRateGaugeFillsFromRateNotFromPercentage(t *testing.T) {
	half := Snapshot{RateGauge: true, Rate: 50, MaxRate: 100, SizeKnown: false, Percentage: 173}
	got := renderBar(stylePlain, 10, barPercentage(half), half.SizeKnown, half.RateGauge)
	want := renderBar(stylePlain, 10, 50, false, true)
	if got != want {
		t.Fatalf("gauge bar at rate 50/100 = %q, want %q", got, want)
	}

	zero := Snapshot{RateGauge: true, Rate: 10, MaxRate: 0}
	if pct := barPercentage(zero); pct != 0 {
		t.Fatalf("barPercentage() with MaxRate=0 = %d, want 0", pct)
	}

	atMax := Snapshot{RateGauge: true, Rate: 200, MaxRate: 100}
	if pct := barPercentage(atMax); pct != 100 {
		t.Fatalf("barPercentage() clamp = %d, want 100", pct)
	}
}

func TestFormatBytesIEC(t *testing.T) {
	if got := FormatBytes(10000, false, false); got != "9.8KiB" {
		t.Fatalf("FormatBytes IEC = %q", got)
	}
	if got := FormatBytes(10000, false, true); got != "10.0kB" {
		t.Fatalf("FormatBytes SI = %q", got)
	}
}

func TestFormatTimerDayRollover(t *testing.T) {
	if got := FormatTimer(86401); got != "1:00:00:01" {
		t.Fatalf("FormatTimer just past 1 day = %q", got)
	}
	if got := FormatTimer(3661); got != "1:01:01" {
		t.Fatalf("FormatTimer = %q", got)
	}
}
