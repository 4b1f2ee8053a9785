// Package sigterm implements the signal & terminal supervisor: it
// installs handlers for the handful of signals the transfer engine
// cares about, tracks cumulative stopped time across SIGTSTP/SIGCONT,
// toggles TOSTOP so a backgrounded write raises SIGTTOU instead of
// silently succeeding, and redirects standard error to /dev/null while
// backgrounded.
//
// Handlers never touch engine state directly; they only flip
// sync/atomic flags, the same single-writer/single-reader discipline
// Daedaluz-goserial uses for Port.closed (atomic.Bool). Go has no
// volatile sig_atomic_t, but os/signal's channel-delivery model (the
// idiom DanDo385-eth-rpc-monitor's cmd/monitor/main.go uses for
// SIGINT/SIGTERM) gives the same property: a dedicated goroutine drains
// the signal channel and sets the flags. The main loop reads them, and
// also sets or clears a few itself (MarkPipeClosed, CheckBackground,
// ConsumeTerminalResized, ResetStoppedOffset).
package sigterm

import (
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/daedaluz/pv/internal/clock"
	"github.com/daedaluz/pv/internal/ttyctl"
)

// Supervisor owns the signal channel, the TOSTOP bit, and the
// stopped-time bookkeeping for one engine instance. The system
// guarantees only one engine is ever live in a process, so a single
// Supervisor value is created per run rather than threaded through a
// process-wide cell.
type Supervisor struct {
	ttyFd int
	clk   clock.Source

	sigCh chan os.Signal
	done  chan struct{}

	pipeClosed      atomic.Bool
	suspendStderr   atomic.Bool
	terminalResized atomic.Bool
	triggerExit     atomic.Bool

	tstpTime        clock.Time
	stoppedOffsetNs atomic.Int64

	weSetTostop bool
	swapped     atomic.Bool
	origStderr  int
}

// New builds a Supervisor for the terminal on ttyFd (-1 if there is no
// controlling terminal to manage TOSTOP/foreground for).
func New(ttyFd int, clk clock.Source) *Supervisor {
	return &Supervisor{ttyFd: ttyFd, clk: clk}
}

// Start reads the terminal's local-mode flags and sets TOSTOP if it was
// off, then installs the signal handlers and launches the draining
// goroutine.
func (s *Supervisor) Start() error {
	if s.ttyFd >= 0 {
		if t, err := ttyctl.GetTermios(s.ttyFd); err == nil {
			if !t.TOSTOPSet() {
				t.SetTOSTOP(true)
				if err := ttyctl.SetTermios(s.ttyFd, t); err == nil {
					s.weSetTostop = true
				}
			}
		}
	}

	s.sigCh = make(chan os.Signal, 16)
	s.done = make(chan struct{})
	signal.Notify(s.sigCh,
		syscall.SIGPIPE,
		syscall.SIGTTOU,
		syscall.SIGTSTP,
		syscall.SIGCONT,
		syscall.SIGWINCH,
		syscall.SIGINT,
		syscall.SIGHUP,
		syscall.SIGTERM,
	)
	go s.loop()
	return nil
}

// Stop uninstalls the handlers and, if this Supervisor set TOSTOP,
// clears it again (matching "we are the sole instance" from §4.7 —
// cursor-sharing IPC, which would track other live instances, is out of
// scope here, so Stop always clears what it set). Stop closes the
// draining goroutine's done channel, so a second call panics.
func (s *Supervisor) Stop() {
	if s.sigCh != nil {
		signal.Stop(s.sigCh)
	}
	if s.done != nil {
		close(s.done)
	}
	if s.weSetTostop && s.ttyFd >= 0 {
		if t, err := ttyctl.GetTermios(s.ttyFd); err == nil {
			t.SetTOSTOP(false)
			ttyctl.SetTermios(s.ttyFd, t)
		}
	}
}

func (s *Supervisor) loop() {
	for {
		select {
		case sig, ok := <-s.sigCh:
			if !ok {
				return
			}
			s.handle(sig)
		case <-s.done:
			return
		}
	}
}

func (s *Supervisor) handle(sig os.Signal) {
	switch sig {
	case syscall.SIGPIPE:
		s.pipeClosed.Store(true)
	case syscall.SIGTTOU:
		s.swapStderrToNull()
	case syscall.SIGTSTP:
		s.tstpTime = s.clk.Now()
		stopSelf()
	case syscall.SIGCONT:
		if !s.tstpTime.Zero() {
			s.stoppedOffsetNs.Add(int64(s.clk.Now().Sub(s.tstpTime)))
			s.tstpTime = clock.Time{}
		}
		s.terminalResized.Store(true)
	case syscall.SIGWINCH:
		s.terminalResized.Store(true)
	case syscall.SIGINT, syscall.SIGHUP, syscall.SIGTERM:
		s.triggerExit.Store(true)
	}
}

// stopSelf re-raises SIGSTOP on this process after a SIGTSTP; a package
// variable so tests can drive handle(SIGTSTP) without stopping.
var stopSelf = func() { _ = syscall.Kill(os.Getpid(), syscall.SIGSTOP) }

// swapStderrToNull opens /dev/null and dup2s it over fd 2, remembering
// the original fd for CheckBackground to try restoring later.
func (s *Supervisor) swapStderrToNull() {
	if s.swapped.Load() {
		return
	}
	null, err := syscall.Open("/dev/null", syscall.O_WRONLY, 0)
	if err != nil {
		return
	}
	orig, err := syscall.Dup(2)
	if err != nil {
		syscall.Close(null)
		return
	}
	if err := syscall.Dup2(null, 2); err != nil {
		syscall.Close(null)
		syscall.Close(orig)
		return
	}
	syscall.Close(null)
	s.origStderr = orig
	s.swapped.Store(true)
	s.suspendStderr.Store(true)
}

// CheckBackground is the once-per-second background-check helper: if
// standard error was replaced with the null device and the process is
// now foreground, it restores the original descriptor, re-asserts
// TOSTOP, and signals the cursor subsystem (via the same
// terminal-resized latch a real resize uses) to reinitialise.
func (s *Supervisor) CheckBackground() {
	if !s.swapped.Load() {
		return
	}
	if s.ttyFd >= 0 && !ttyctl.Foreground(s.ttyFd) {
		return
	}
	if err := syscall.Dup2(s.origStderr, 2); err != nil {
		return
	}
	syscall.Close(s.origStderr)
	s.origStderr = 0
	s.swapped.Store(false)
	s.suspendStderr.Store(false)

	if s.ttyFd >= 0 {
		if t, err := ttyctl.GetTermios(s.ttyFd); err == nil && !t.TOSTOPSet() {
			t.SetTOSTOP(true)
			ttyctl.SetTermios(s.ttyFd, t)
		}
	}
	s.terminalResized.Store(true)
}

// TriggerExit reports whether SIGINT/SIGHUP/SIGTERM has latched.
func (s *Supervisor) TriggerExit() bool { return s.triggerExit.Load() }

// PipeClosed reports whether SIGPIPE has latched.
func (s *Supervisor) PipeClosed() bool { return s.pipeClosed.Load() }

// MarkPipeClosed lets the engine fold an EPIPE write error into the same
// latch a SIGPIPE handler would set, per §4.7's "treated identically".
func (s *Supervisor) MarkPipeClosed() { s.pipeClosed.Store(true) }

// SuspendStderr reports whether display writes should be gated off
// because we are backgrounded.
func (s *Supervisor) SuspendStderr() bool { return s.suspendStderr.Load() }

// ConsumeTerminalResized reports and clears the terminal-resized latch.
func (s *Supervisor) ConsumeTerminalResized() bool { return s.terminalResized.Swap(false) }

// StoppedOffset returns the cumulative time spent stopped between
// SIGTSTP and SIGCONT, which the engine subtracts from wall-clock
// elapsed time so a stop never inflates the observed rate.
func (s *Supervisor) StoppedOffset() time.Duration {
	return time.Duration(s.stoppedOffsetNs.Load())
}

// ResetStoppedOffset zeroes the stopped-time accumulator. Used by
// --wait when the first byte/line arrives and start_time is reset to
// now.
func (s *Supervisor) ResetStoppedOffset() { s.stoppedOffsetNs.Store(0) }
