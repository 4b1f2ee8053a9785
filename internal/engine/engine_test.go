package engine

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/daedaluz/pv/internal/clock"
	"github.com/daedaluz/pv/internal/control"
	"github.com/daedaluz/pv/internal/display"
	"github.com/daedaluz/pv/internal/remote"
	"github.com/daedaluz/pv/internal/sigterm"
	"github.com/daedaluz/pv/internal/transfer"
)

func newTestCore() *transfer.Core {
	return transfer.New(4096, transfer.Features{}, '\n')
}

// fakeClock is a manually-advanced clock.Source: each Now() call steps
// forward by a fixed tick from a real starting instant, so the pump
// loop's interval/rate-limit math runs deterministically without an
// actual sleep.
type fakeClock struct {
	mu   sync.Mutex
	now  clock.Time
	tick time.Duration
}

func newFakeClock(tick time.Duration) *fakeClock {
	return &fakeClock{now: clock.Real{}.Now(), tick: tick}
}

func (f *fakeClock) Now() clock.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.now
	f.now = f.now.Add(f.tick)
	return t
}

type fakeInput struct {
	r      *bytes.Reader
	closed bool
}

func (f *fakeInput) Read(p []byte) (int, error)                  { return f.r.Read(p) }
func (f *fakeInput) Fd() int                                      { return -1 }
func (f *fakeInput) Seekable() bool                               { return false }
func (f *fakeInput) Seek(offset int64, whence int) (int64, error) { return 0, nil }
func (f *fakeInput) IsPipe() bool                                 { return false }

type fakeSource struct {
	payload []byte
	opened  bool
	closed  bool
}

func (s *fakeSource) Open() (transfer.Input, bool, error) {
	if s.opened {
		return nil, false, nil
	}
	s.opened = true
	return &fakeInput{r: bytes.NewReader(s.payload)}, true, nil
}

func (s *fakeSource) Close() error {
	s.closed = true
	return nil
}

type fakeOutput struct {
	buf bytes.Buffer
}

func (f *fakeOutput) Write(p []byte) (int, error) { return f.buf.Write(p) }
func (f *fakeOutput) Fd() int                      { return -1 }
func (f *fakeOutput) IsPipe() bool                 { return false }

// TestRunTransfersEverythingAndReportsOK drives a full Engine.Run over a
// small in-memory payload and checks the transfer completes cleanly with
// status 0 and every byte delivered.
func TestRunTransfersEverythingAndReportsOK(t *testing.T) {
	payload := bytes.Repeat([]byte("0123456789"), 500)
	src := &fakeSource{payload: payload}
	out := &fakeOutput{}
	cfg := control.Default()
	cfg.Interval = time.Millisecond
	cfg.BufferSize = 4096

	sup := sigterm.New(-1, newFakeClock(time.Millisecond))
	drv := &display.Driver{Out: &bytes.Buffer{}, TTYFd: -1}

	e := &Engine{
		Config:  cfg,
		Source:  src,
		Output:  out,
		Clock:   newFakeClock(time.Millisecond),
		TTYFd:   -1,
		Sup:     sup,
		Display: drv,
	}

	status, err := e.Run()
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if status != StatusOK {
		t.Fatalf("status = %d, want StatusOK", status)
	}
	if !bytes.Equal(out.buf.Bytes(), payload) {
		t.Fatalf("output mismatch: got %d bytes, want %d", out.buf.Len(), len(payload))
	}
	if !src.closed {
		t.Fatalf("Source.Close() was never called")
	}
}

// TestRunReportsInputAccessFailure checks that a source which never
// opens anything surfaces StatusInputAccess without touching Output.
func TestRunReportsInputAccessFailure(t *testing.T) {
	src := &fakeSource{opened: true} // Open() immediately returns ok=false
	out := &fakeOutput{}
	cfg := control.Default()

	sup := sigterm.New(-1, newFakeClock(time.Millisecond))
	drv := &display.Driver{Out: &bytes.Buffer{}, TTYFd: -1}

	e := &Engine{
		Config:  cfg,
		Source:  src,
		Output:  out,
		Clock:   newFakeClock(time.Millisecond),
		TTYFd:   -1,
		Sup:     sup,
		Display: drv,
	}

	status, err := e.Run()
	if err == nil {
		t.Fatalf("Run() error = nil, want non-nil")
	}
	if status != StatusInputAccess {
		t.Fatalf("status = %d, want StatusInputAccess", status)
	}
	if out.buf.Len() != 0 {
		t.Fatalf("output written despite no readable input")
	}
}

// TestFeaturesFromConfigDisablesSpliceWhenIncompatible checks that any
// feature requiring the buffered path (line mode here) turns off splice
// eligibility regardless of pipe-ness.
func TestFeaturesFromConfigDisablesSpliceWhenIncompatible(t *testing.T) {
	cfg := control.Default()
	cfg.Count = control.CountLines
	f := featuresFromConfig(cfg)
	if !f.LineMode {
		t.Fatalf("LineMode = false, want true")
	}
	if f.SplicePermitted(true, true) {
		t.Fatalf("splicePermitted() = true, want false under line mode")
	}
}

// TestApplyRemoteLeavesNameAndFormatUnchangedWhenUnset checks that a
// plain rate-limit update (the common "-R pid -L 50M" case) doesn't
// wipe out a target's existing -N name or -F format.
func TestApplyRemoteLeavesNameAndFormatUnchangedWhenUnset(t *testing.T) {
	cfg := control.Default()
	cfg.Name = "stage-1"
	cfg.Format = "%p %r"
	drv := &display.Driver{Out: &bytes.Buffer{}, TTYFd: -1}
	drv.Compile(cfg.Format)

	e := &Engine{Config: cfg, Display: drv, core: newTestCore()}

	e.applyRemote(remote.Message{RateLimit: 1 << 20})

	if cfg.Name != "stage-1" {
		t.Fatalf("Name = %q, want unchanged %q", cfg.Name, "stage-1")
	}
	if cfg.Format != "%p %r" {
		t.Fatalf("Format = %q, want unchanged %q", cfg.Format, "%p %r")
	}
	if cfg.RateLimit != 1<<20 {
		t.Fatalf("RateLimit = %d, want %d", cfg.RateLimit, 1<<20)
	}
}

// TestApplyRemoteUpdatesNameAndFormatWhenSet checks that an explicit
// NameSet/FormatSet update applies, including clearing back to "".
func TestApplyRemoteUpdatesNameAndFormatWhenSet(t *testing.T) {
	cfg := control.Default()
	cfg.Name = "stage-1"
	cfg.Format = "%p %r"
	drv := &display.Driver{Out: &bytes.Buffer{}, TTYFd: -1}
	drv.Compile(cfg.Format)

	e := &Engine{Config: cfg, Display: drv, core: newTestCore()}

	e.applyRemote(remote.Message{Name: "stage-2", NameSet: true, Format: "", FormatSet: true})

	if cfg.Name != "stage-2" {
		t.Fatalf("Name = %q, want %q", cfg.Name, "stage-2")
	}
	if cfg.Format != "" {
		t.Fatalf("Format = %q, want cleared to empty", cfg.Format)
	}
}
