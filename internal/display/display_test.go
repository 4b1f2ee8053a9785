package display

import (
	"bytes"
	"testing"
	"time"

	"github.com/daedaluz/pv/internal/format"
)

func TestRenderDefaultMode(t *testing.T) {
	var buf bytes.Buffer
	d := &Driver{Mode: ModeDefault, Out: &buf, TTYFd: -1, Force: true}
	d.Compile("%b")
	s, ok := d.Render(format.Snapshot{Count: 42}, 80)
	if !ok {
		t.Fatalf("Render() ok=false")
	}
	if s != "42B" {
		t.Fatalf("Render() = %q, want 42B", s)
	}
	if err := d.Write(s); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	if buf.String() != "42B\r" {
		t.Fatalf("buf = %q, want trailing carriage return", buf.String())
	}
}

func TestRenderNotCompiledIsNotRenderable(t *testing.T) {
	d := &Driver{Mode: ModeDefault, Out: &bytes.Buffer{}, TTYFd: -1, Force: true}
	if _, ok := d.Render(format.Snapshot{}, 80); ok {
		t.Fatalf("Render() before Compile() should be not-ok")
	}
}

func TestSuspendGateBlocksWrite(t *testing.T) {
	var buf bytes.Buffer
	suspended := true
	d := &Driver{
		Mode: ModeDefault, Out: &buf, TTYFd: -1, Force: true,
		Suspended: func() bool { return suspended },
	}
	d.Compile("%b")
	if err := d.Write("x"); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("write went through while suspended: %q", buf.String())
	}
}

func TestNumericModeExplicitSelectionOnly(t *testing.T) {
	var buf bytes.Buffer
	d := &Driver{Mode: ModeNumeric, Out: &buf, TTYFd: -1, Force: true}
	d.Compile("%b") // only bytes selected explicitly
	snap := format.Snapshot{Elapsed: 3 * time.Second, Count: 9, Rate: 2, Percentage: 50}
	s, ok := d.Render(snap, 80)
	if !ok {
		t.Fatalf("Render() ok=false")
	}
	if s != "9" {
		t.Fatalf("numeric single-field output = %q, want %q", s, "9")
	}
}

func TestNumericModeAllFieldsWhenNoneSelected(t *testing.T) {
	var buf bytes.Buffer
	d := &Driver{Mode: ModeNumeric, Out: &buf, TTYFd: -1, Force: true}
	d.Compile("static text")
	snap := format.Snapshot{Elapsed: 3 * time.Second, Count: 9, Rate: 2, Percentage: 50}
	s, _ := d.Render(snap, 80)
	if s != "3 9 2 50" {
		t.Fatalf("numeric default field order = %q, want %q", s, "3 9 2 50")
	}
}
