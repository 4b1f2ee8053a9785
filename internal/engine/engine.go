// Package engine implements the main loop: the scheduler that composes
// the clock, the transfer core, the rate calculator, the format
// renderer/display driver, the remote receiver and the signal/terminal
// supervisor into the single blocking Run() call described in §4.1.
//
// The remote-receiver poll (§4.6's 100ms cadence) runs on its own
// goroutine supervised by golang.org/x/sync/errgroup, the same
// dependency DanDo385-eth-rpc-monitor's go.mod carries for its own
// background workers: a listener failure is returned from Wait() and
// folded into the same error path Run() already uses for a fatal
// transfer error, rather than silently stalling remote reconfiguration
// for the rest of the run.
package engine

import (
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/daedaluz/pv/internal/clock"
	"github.com/daedaluz/pv/internal/control"
	"github.com/daedaluz/pv/internal/display"
	"github.com/daedaluz/pv/internal/format"
	"github.com/daedaluz/pv/internal/ratecalc"
	"github.com/daedaluz/pv/internal/remote"
	"github.com/daedaluz/pv/internal/sigterm"
	"github.com/daedaluz/pv/internal/transfer"
	"github.com/daedaluz/pv/internal/ttyctl"
)

// RateBurstWindow is the token bucket's burst cap, expressed as a
// multiple of the per-second rate limit (§4.1 step 6).
const RateBurstWindow = 5

// remoteCheckInterval is the cadence at which the background goroutine
// polls the remote-receiver queue (§4.1 step 7a).
const remoteCheckInterval = 100 * time.Millisecond

// backgroundCheckInterval is the cadence of the signal supervisor's
// stderr-restore probe (§4.7).
const backgroundCheckInterval = time.Second

// drainSleep is the pause used while end-of-input has been reached but
// the output pipe still holds unread data (§4.1 step j), so the loop
// does not busy-spin waiting for the consumer.
const drainSleep = 50 * time.Millisecond

// ExitStatus is the bitmask §7 defines.
type ExitStatus int

const (
	StatusOK            ExitStatus = 0
	StatusInputAccess   ExitStatus = 2
	StatusSameFile      ExitStatus = 4
	StatusCloseError    ExitStatus = 8
	StatusTransferError ExitStatus = 16
	StatusSignalled     ExitStatus = 32
	StatusAllocFailed   ExitStatus = 64
)

// InputSource is the out-of-scope "input source" collaborator (§1):
// whatever locates, opens, and closes files, the engine only ever asks
// it for the next readable input.
type InputSource interface {
	// Open closes any currently-open input and opens the next one. ok
	// is false once every input has been consumed (or, on the very
	// first call, if none was ever readable).
	Open() (in transfer.Input, ok bool, err error)
	// Close closes whichever input Open last returned.
	Close() error
}

// BlockSizer is an optional capability an Input may implement so the
// engine can size its initial buffer from the underlying filesystem's
// block size (§4.1 step 4) instead of falling back to the default.
type BlockSizer interface {
	BlockSize() int
}

// Engine wires together one run of the transfer loop. The caller
// (cmd/pv) builds the collaborators; Engine owns the Core/Calc it
// constructs internally, matching the "owned exclusively by one
// transfer" rule in §3.
type Engine struct {
	Config   *control.Config
	Source   InputSource
	Output   transfer.Output
	Clock    clock.Source
	TTYFd    int // -1 disables resize/foreground queries entirely
	Receiver *remote.Receiver
	Sup      *sigterm.Supervisor
	Display  *display.Driver

	// StatsOut is where the --show-stats summary is written; defaults
	// to the display's Out if nil.
	StatsOut io.Writer

	core *transfer.Core
	calc *ratecalc.Calc
}

func durationMax(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}

// featuresFromConfig derives the zero-copy-eligibility Features bundle
// from the control config (§4.2).
func featuresFromConfig(cfg *control.Config) transfer.Features {
	return transfer.Features{
		LastWritten:     cfg.Format != "" && formatWantsLastWritten(cfg.Format),
		PreviousLine:    cfg.Format != "" && formatWantsPreviousLine(cfg.Format),
		Discard:         cfg.Discard,
		StoreAndForward: cfg.StoreAndForward != "",
		SkipErrors:      cfg.SkipErrors > 0,
		StopAtSizeFine:  cfg.StopAtSize,
		LineMode:        cfg.Count == control.CountLines,
		FineRateLimit:   cfg.RateLimit > 0 && cfg.BufferSize > 0 && cfg.RateLimit < cfg.BufferSize,
		NoSplice:        cfg.NoSplice,
	}
}

func formatWantsLastWritten(f string) bool { return format.Compile(f).ShowLastWritten }
func formatWantsPreviousLine(f string) bool { return format.Compile(f).ShowPreviousLine }

// Run blocks until the transfer completes, a terminating signal
// latches, or a fatal error occurs, then returns the §7 exit-status
// bitmask.
func (e *Engine) Run() (ExitStatus, error) {
	if err := e.Sup.Start(); err != nil {
		return StatusAllocFailed, err
	}
	defer e.Sup.Stop()

	in, ok, err := e.Source.Open()
	if !ok {
		if err == nil {
			err = errors.New("no readable input")
		}
		return StatusInputAccess, err
	}

	delimiter := byte('\n')
	if e.Config.Null {
		delimiter = 0
	}
	bufSize := e.initialBufferSize(in)
	e.core = transfer.New(bufSize, featuresFromConfig(e.Config), delimiter)
	e.core.SetSkipErrors(transfer.SkipErrorsConfig{
		Enabled:    e.Config.SkipErrors > 0,
		Quiet:      e.Config.SkipErrors > 1,
		FixedBlock: e.Config.ErrorSkipBlock,
	})
	e.calc = ratecalc.New(e.Config.AverageRateWindow.Seconds(), 0)
	e.Display.Compile(e.Config.Format)
	lwWidth := 0
	for _, seg := range e.Display.Plan().Segments {
		if seg.Tag != format.TagLastWritten {
			continue
		}
		n := seg.Size
		if n <= 0 || n > 256 {
			n = 256
		}
		if n > lwWidth {
			lwWidth = n
		}
	}
	e.core.SetLastWrittenWidth(lwWidth)

	msgCh :=make(chan remote.Message, 8)
	stop := make(chan struct{})
	var eg errgroup.Group
	if e.Receiver != nil {
		eg.Go(func() error { return e.pollRemote(msgCh, stop) })
	}

	status, runErr := e.pump(in, msgCh)

	close(stop)
	if egErr := eg.Wait(); egErr != nil && runErr == nil {
		runErr = egErr
		status |= StatusTransferError
	}

	e.teardownDisplay()
	if cerr := e.Source.Close(); cerr != nil {
		status |= StatusCloseError
	}
	return status, runErr
}

// pollRemote drains one message per tick at the 100ms cadence and
// forwards it to the main loop; it returns (surfacing through
// errgroup.Wait) only on a non-recoverable queue error.
func (e *Engine) pollRemote(out chan<- remote.Message, stop <-chan struct{}) error {
	ticker := time.NewTicker(remoteCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return nil
		case <-ticker.C:
			msg, ok, err := e.Receiver.Poll()
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			select {
			case out <- msg:
			case <-stop:
				return nil
			}
		}
	}
}

// pump is the per-iteration algorithm of §4.1 step 7.
func (e *Engine) pump(in transfer.Input, msgCh <-chan remote.Message) (ExitStatus, error) {
	var status ExitStatus
	cfg := e.Config

	start := e.Clock.Now()
	nextUpdate := start.Add(durationMax(cfg.DelayStart, cfg.Interval))
	nextBackgroundCheck := start.Add(backgroundCheckInterval)

	var target float64
	burstCap := float64(cfg.RateLimit) * RateBurstWindow
	lastTopUp := start

	eofIn, eofOut := false, false
	finalDone := false
	firstSeen := false
	outIsPipe := e.Output.IsPipe()

	for {
		select {
		case msg := <-msgCh:
			e.applyRemote(msg)
		default:
		}

		if e.Sup.TriggerExit() {
			status |= StatusSignalled
			break
		}
		if e.Sup.PipeClosed() {
			outIsPipe = false
		}

		now := e.Clock.Now()
		if !now.Before(nextBackgroundCheck) {
			e.Sup.CheckBackground()
			nextBackgroundCheck = now.Add(backgroundCheckInterval)
		}

		var cansend int64
		if cfg.RateLimit > 0 {
			target += float64(cfg.RateLimit) * now.Sub(lastTopUp).Seconds()
			if target > burstCap {
				target = burstCap
			}
			cansend = int64(target)
		}
		lastTopUp = now

		if cfg.StopAtSize && cfg.Size > 0 {
			remaining := int64(cfg.Size) - int64(e.core.TotalWritten())
			if remaining < 0 {
				remaining = 0
			}
			if cfg.RateLimit == 0 || remaining < cansend {
				cansend = remaining
			}
			if remaining == 0 {
				eofIn, eofOut = true, true
			}
		}

		// Step treats cansend 0 as "unlimited", so an empty token bucket
		// skips the step instead.
		if !(eofIn && eofOut) && !(cfg.RateLimit > 0 && cansend == 0) {
			res, serr := e.core.Step(in, e.Output, cansend, int64(e.core.BufferCap()))
			if serr != nil {
				if errors.Is(serr, transfer.ErrPipeClosed) {
					e.Sup.MarkPipeClosed()
					outIsPipe = false
					eofOut = true
				} else {
					status |= StatusTransferError
					return status, serr
				}
			} else {
				if cfg.RateLimit > 0 {
					target -= float64(res.BytesWritten)
					if target < 0 {
						target = 0
					}
				}
				if res.EOFIn {
					eofIn = true
				}
				if res.EOFOut {
					eofOut = true
				}
			}
		}

		if outIsPipe {
			backlog, berr := transfer.PipeBacklog(e.Output.Fd())
			if berr != nil {
				outIsPipe = false
				e.core.SetWrittenButNotConsumed(0)
			} else {
				consumed := uint64(backlog)
				if cfg.Count == control.CountLines {
					lastConsumedBytePos := uint64(0)
					if tb := e.core.TotalBytes(); tb > consumed {
						lastConsumedBytePos = tb - consumed
					}
					consumed = uint64(e.core.LinesAbove(lastConsumedBytePos))
				}
				e.core.SetWrittenButNotConsumed(consumed)
			}
		} else {
			e.core.SetWrittenButNotConsumed(0)
		}

		if eofIn && eofOut {
			nextIn, hasNext, _ := e.Source.Open()
			if hasNext {
				in = nextIn
				e.core.ResetForNewInput()
				eofIn, eofOut = false, false
			} else if e.core.WrittenButNotConsumed() == 0 {
				finalDone = true
				nextUpdate = now
			} else {
				time.Sleep(drainSleep)
				continue
			}
		}

		if cfg.Wait && !firstSeen {
			if e.core.TotalWritten() == 0 {
				continue
			}
			firstSeen = true
			start = now
			e.Sup.ResetStoppedOffset()
		}

		if now.Before(nextUpdate) && !finalDone {
			continue
		}
		nextUpdate = nextUpdate.Add(cfg.Interval)
		if nextUpdate.Before(now) {
			nextUpdate = now
		}

		elapsed := now.Sub(start) - e.Sup.StoppedOffset()

		if e.Sup.ConsumeTerminalResized() {
			e.applyResize()
		}

		sizeKnown := cfg.Size > 0
		e.calc.Update(elapsed.Seconds(), e.core.TotalWritten(), finalDone, sizeKnown, cfg.Size, e.core.Transferred())
		snap := e.buildSnapshot(elapsed, sizeKnown, finalDone)
		if s, ok := e.Display.Render(snap, cfg.Width); ok {
			e.Display.Write(s)
		}

		if finalDone {
			break
		}
	}

	return status, nil
}

func (e *Engine) initialBufferSize(in transfer.Input) int {
	if e.Config.BufferSize > 0 {
		return int(e.Config.BufferSize)
	}
	if bs, ok := in.(BlockSizer); ok {
		if n := bs.BlockSize(); n > 0 {
			size := n * 32
			if size > 512*1024 {
				size = 512 * 1024
			}
			return size
		}
	}
	return 400 * 1024
}

// applyRemote applies a live option update (§4.6). Options that cannot
// change mid-transfer (cursor, line-mode, force, delay-start,
// skip-errors, stop-at-size) are ignored even if present.
func (e *Engine) applyRemote(m remote.Message) {
	cfg := e.Config
	if m.RateLimit != 0 {
		cfg.RateLimit = m.RateLimit
	}
	if m.BufferSize != 0 {
		cfg.BufferSize = m.BufferSize
		e.core.Resize(int(m.BufferSize))
	}
	if m.Size != 0 {
		cfg.Size = m.Size
	}
	if m.Interval != 0 {
		cfg.Interval = time.Duration(m.Interval * float64(time.Second))
	}
	if m.WidthManual && m.Width != 0 {
		cfg.Width = int(m.Width)
		cfg.WidthManual = true
	}
	if m.HeightManual && m.Height != 0 {
		cfg.Height = int(m.Height)
		cfg.HeightManual = true
	}
	if m.LastWrittenWidth != 0 {
		e.core.SetLastWrittenWidth(int(m.LastWrittenWidth))
	}
	if m.NameSet {
		cfg.Name = m.Name
	}
	if m.FormatSet && m.Format != cfg.Format {
		cfg.Format = m.Format
		e.Display.Compile(cfg.Format)
	}
}

func (e *Engine) applyResize() {
	if e.TTYFd < 0 {
		return
	}
	ws, err := ttyctl.GetWinsize(e.TTYFd)
	if err != nil {
		return
	}
	if !e.Config.WidthManual && ws.Cols > 0 {
		e.Config.Width = int(ws.Cols)
	}
	if !e.Config.HeightManual && ws.Rows > 0 {
		e.Config.Height = int(ws.Rows)
	}
}

func (e *Engine) buildSnapshot(elapsed time.Duration, sizeKnown, final bool) format.Snapshot {
	cfg := e.Config
	transferred := e.core.Transferred()

	var etaSeconds float64
	var finETA time.Time
	etaValid := sizeKnown
	if etaValid {
		etaSeconds = e.calc.ETA(cfg.Size, transferred)
		finETA = e.Clock.Now().Add(time.Duration(etaSeconds * float64(time.Second))).WallTime()
	}

	bufPct := "{----}"
	if bp := e.core.BufferPercentage(); bp >= 0 {
		bufPct = fmt.Sprintf("{%d%%}", bp)
	}

	return format.Snapshot{
		Elapsed:       elapsed,
		Rate:          e.calc.Rate(),
		AvgRate:       e.calc.AverageRate(),
		Count:         e.core.TotalWritten(),
		SizeKnown:     sizeKnown,
		Size:          cfg.Size,
		Transferred:   transferred,
		Percentage:    e.calc.Percentage(),
		ETASeconds:    etaSeconds,
		ETAValid:      etaValid,
		FinETA:        finETA,
		FinETAValid:   etaValid,
		BufferPercent: bufPct,
		LastWritten:   e.core.LastWritten(),
		PreviousLine:  e.core.PreviousLine(),
		Name:          cfg.Name,
		Bits:          cfg.Bits,
		SI:            cfg.Units == control.UnitsSI,
		RateGauge:     cfg.RateGauge,
		MaxRate:       e.calc.MaxRate(),
		SGRSupported:  e.Display.Mode != display.ModeNumeric,
		Final:         final,
	}
}

// teardownDisplay implements §4.1 step 8's display half: release the
// cursor row if cursor-sharing was active, else emit a trailing newline
// if anything was ever actually painted, then (if requested) the final
// rate statistics line.
func (e *Engine) teardownDisplay() {
	if e.Display.Mode == display.ModeCursor && e.Display.Cursor != nil {
		e.Display.Cursor.Release()
	} else if e.Display.Visible() {
		fmt.Fprintln(e.Display.Out)
	}

	if !e.Config.ShowStats {
		return
	}
	stats, ok := e.calc.FinalStats()
	if !ok {
		return
	}
	out := e.StatsOut
	if out == nil {
		out = e.Display.Out
	}
	display.WriteStats(out, stats, e.Config.Bits, e.Config.Units == control.UnitsSI)
}
