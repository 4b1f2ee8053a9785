// Package display implements the display driver: it calls the format
// renderer and writes the result to the terminal, to numeric mode, or to
// extra destinations (window/process title). The main loop drives it
// once per display tick through Render and Write. TTY detection
// (IsTerminal) uses github.com/mattn/go-isatty; the foreground gate uses
// ttyctl.Foreground.
package display

import (
	"fmt"
	"io"
	"strings"

	isatty "github.com/mattn/go-isatty"

	"github.com/daedaluz/pv/internal/format"
	"github.com/daedaluz/pv/internal/ttyctl"
)

// Mode selects the output mode.
type Mode int

const (
	ModeDefault Mode = iota
	ModeNumeric
	ModeCursor
)

// ExtraDisplay is a bitmask of additional destinations for the rendered
// string.
type ExtraDisplay int

const (
	ExtraWindowTitle ExtraDisplay = 1 << iota
	ExtraProcessTitle
)

// CursorAllocator is the external cursor-sharing collaborator. Alloc returns the terminal row this
// display instance owns; MoveTo repositions the cursor there before each
// paint.
type CursorAllocator interface {
	Alloc() (row int, err error)
	MoveTo(row int) error
	Release() error
}

// Driver holds the state needed to compile and render one progress line.
type Driver struct {
	Mode  Mode
	Extra ExtraDisplay

	Out io.Writer
	// TTYFd is the fd used for the foreground process-group check; -1
	// disables the check (e.g. Out is not a terminal at all).
	TTYFd int
	Force bool

	Cursor     CursorAllocator
	cursorRow  int
	cursorInit bool

	plan      *format.Plan
	prevWidth int

	// Suspended reports whether the signal supervisor has latched
	// suspend_stderr; when true, writes are skipped entirely.
	Suspended func() bool

	displayVisible bool
	initialOffset  uint64
}

// Compile (re)compiles the format plan. The main loop calls this when the
// format string changes or the remote receiver latches reparse_display.
func (d *Driver) Compile(f string) {
	d.plan = format.Compile(f)
	d.prevWidth = 0
}

// Plan exposes the compiled plan, mainly for tests asserting the
// round-trip property.
func (d *Driver) Plan() *format.Plan {
	return d.plan
}

// Render composes the display string for one tick. It returns ok=false
// only when the plan has not been compiled yet; the --wait skip before
// the first byte is done by the main loop, which does not call Render
// until then.
func (d *Driver) Render(snap format.Snapshot, termWidth int) (string, bool) {
	if d.plan == nil {
		return "", false
	}
	if d.Mode == ModeNumeric {
		return d.renderNumeric(snap), true
	}
	s, w := format.Render(d.plan, snap, termWidth, d.prevWidth)
	d.prevWidth = w
	return s, true
}

// renderNumeric implements mode 1: a newline-terminated,
// whitespace-separated line. The fixed field order is timer, bytes,
// rate, percentage; the default component set (when the format string
// selects none of these) is all four.
func (d *Driver) renderNumeric(snap format.Snapshot) string {
	showPct := false
	for _, seg := range d.plan.Segments {
		if seg.Tag == format.TagProgress || seg.Tag == format.TagProgressAmountOnly {
			showPct = true
		}
	}
	show := d.plan.ShowTimer || d.plan.ShowBytes || d.plan.ShowRate || showPct
	var fields []string
	if !show || d.plan.ShowTimer {
		fields = append(fields, fmt.Sprintf("%.0f", snap.Elapsed.Seconds()))
	}
	if !show || d.plan.ShowBytes {
		fields = append(fields, fmt.Sprintf("%d", snap.Count))
	}
	if !show || d.plan.ShowRate {
		fields = append(fields, fmt.Sprintf("%.0f", snap.Rate))
	}
	if !show || showPct {
		fields = append(fields, fmt.Sprintf("%d", snap.Percentage))
	}
	return strings.Join(fields, " ")
}

// Write emits s to the terminal (or cursor row) and to any extra
// destinations, honouring the suspend gate and the foreground check.
func (d *Driver) Write(s string) error {
	if d.Suspended != nil && d.Suspended() {
		return nil
	}
	if !d.Force && d.TTYFd >= 0 && !ttyctl.Foreground(d.TTYFd) {
		return nil
	}

	switch d.Mode {
	case ModeNumeric:
		_, err := fmt.Fprintln(d.Out, s)
		if err == nil {
			d.displayVisible = true
		}
		return err
	case ModeCursor:
		if d.Cursor == nil {
			return nil
		}
		if !d.cursorInit {
			row, err := d.Cursor.Alloc()
			if err != nil {
				return err
			}
			d.cursorRow = row
			d.cursorInit = true
		}
		if err := d.Cursor.MoveTo(d.cursorRow); err != nil {
			return err
		}
		_, err := fmt.Fprint(d.Out, s)
		if err == nil {
			d.displayVisible = true
		}
		return err
	default:
		_, err := fmt.Fprint(d.Out, s+"\r")
		if err == nil {
			d.displayVisible = true
		}
		return err
	}
}

// Visible reports whether at least one display line was actually
// written, used by the main loop's teardown step.
func (d *Driver) Visible() bool {
	return d.displayVisible
}

// WindowTitle wraps s in the OSC 2 escape sequence.
func WindowTitle(s string) string {
	return "\x1b]2;" + s + "\x1b\\"
}

// IsTerminal reports whether fd is a terminal, using go-isatty instead
// of hand-rolled stat checks.
func IsTerminal(fd uintptr) bool {
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// DiscardSink is an io.Writer used in --numeric or headless test
// contexts where no terminal is attached.
var DiscardSink io.Writer = discard{}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
