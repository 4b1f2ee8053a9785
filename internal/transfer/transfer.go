// Package transfer implements the transfer core: advancing
// the transfer by one step, reading up to cansend bytes and writing as
// much as the output accepts without blocking indefinitely.
//
// The per-call read/write timeouts follow Port.readTimeout's pattern of
// wrapping a blocking syscall.Read in a poll.WaitInput(fd, timeout) call
// from github.com/daedaluz/fdev/poll. The write side uses the same
// package's symmetric WaitOutput (inferred from the same poll API
// family — see DESIGN.md).
package transfer

import (
	"errors"
	"io"
	"time"
)

// Timeouts: approximately 90ms for reads and 900ms for writes.
const (
	ReadTimeout  = 90 * time.Millisecond
	WriteTimeout = 900 * time.Millisecond

	// MaxReadAtOnce / MaxWriteAtOnce bound one buffered-path syscall.
	MaxReadAtOnce  = 512 * 1024
	MaxWriteAtOnce = 512 * 1024

	// MaxLinePositions is the line-position ring's capacity.
	MaxLinePositions = 100000
)

// Input is the input-source contract: whatever opens/closes/locates
// files, it must hand the transfer core something that can be read with
// a deadline, spliced from when it is a pipe, and optionally seeked
// past bad data for the skip-errors policy.
type Input interface {
	io.Reader
	Fd() int
	// Seekable reports whether Seek can be used to skip past read
	// errors.
	Seekable() bool
	Seek(offset int64, whence int) (int64, error)
	// IsPipe reports whether this input is a pipe/FIFO, which gates the
	// zero-copy splice path.
	IsPipe() bool
}

// Output is the transfer core's write side.
type Output interface {
	io.Writer
	Fd() int
	IsPipe() bool
}

// Error is this package's wrap-a-message error, matching the error.go
// shape used throughout this module.
type Error struct {
	msg string
	err error
}

func (e Error) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}
func (e Error) Unwrap() error { return e.err }

// ErrFatalWrite is returned (wrapped) when a write fails with anything
// other than EINTR/EAGAIN/EPIPE.
var ErrFatalWrite = errors.New("fatal write error")

// ErrPipeClosed marks an orderly end caused by the consumer closing its
// end of the pipe.
var ErrPipeClosed = errors.New("output pipe closed")

// Features bundles the flags that decide whether the zero-copy path is
// even eligible.
type Features struct {
	BufferPercent  bool
	LastWritten    bool
	PreviousLine   bool
	Discard        bool
	StoreAndForward bool
	SkipErrors     bool
	StopAtSizeFine bool // stop-at-size below the block boundary
	LineMode       bool
	FineRateLimit  bool // rate limit finer than a buffer size
	NoSplice       bool
}

func (f Features) splicePermitted(inPipe, outPipe bool) bool {
	if f.NoSplice {
		return false
	}
	if !inPipe && !outPipe {
		return false
	}
	if f.BufferPercent || f.LastWritten || f.PreviousLine || f.Discard ||
		f.StoreAndForward || f.SkipErrors || f.StopAtSizeFine || f.LineMode ||
		f.FineRateLimit {
		return false
	}
	return true
}

// SplicePermitted reports whether these features leave the zero-copy
// path eligible for an input/output of the given pipe-ness.
func (f Features) SplicePermitted(inPipe, outPipe bool) bool {
	return f.splicePermitted(inPipe, outPipe)
}

// Core is the Transfer state entity: buffer, positions, and counters
// owned exclusively by one transfer (§3 Transfer state).
type Core struct {
	buffer       []byte
	readPos      int
	writePos     int
	bufferTarget int

	totalWritten uint64 // bytes, or lines in line-mode
	totalBytes   uint64 // raw output byte count, tracked in both modes
	transferred  uint64
	writtenButNotConsumed uint64

	readErrorsInARow int
	lastReadSkipFd   int
	skipWarned       bool
	skipQuiet        bool
	skipFixedBlock   uint64
	spliceUsed       bool
	spliceFailedFd   map[int]bool

	lines linePositions
	lw    lastWritten

	lastWrittenWidth int

	delimiter byte

	Features Features
	Sync     bool
}

// New allocates a Core with the given target buffer size.
func New(bufferSize int, features Features, lineDelimiter byte) *Core {
	if bufferSize <= 0 {
		bufferSize = 400 * 1024
	}
	return &Core{
		buffer:         make([]byte, bufferSize),
		bufferTarget:   bufferSize,
		spliceFailedFd: make(map[int]bool),
		Features:       features,
		delimiter:      lineDelimiter,
		lines:          newLinePositions(MaxLinePositions),
	}
}

// Resize reallocates the buffer when the target size changes.
func (c *Core) Resize(size int) {
	if size == c.bufferTarget || size <= 0 {
		return
	}
	alloc := size
	if pending := c.readPos - c.writePos; pending > alloc {
		alloc = pending // never drop bytes already staged
	}
	nb := make([]byte, alloc)
	n := copy(nb, c.buffer[c.writePos:c.readPos])
	c.buffer = nb
	c.readPos = n
	c.writePos = 0
	c.bufferTarget = size
}

// TotalWritten and Transferred expose the counters the main loop and
// renderer need.
func (c *Core) TotalWritten() uint64 { return c.totalWritten }
func (c *Core) Transferred() uint64  { return c.transferred }

// TotalBytes returns the raw output byte count, tracked independently
// of line-mode so the engine can convert a byte-denominated pipe
// backlog into a line backlog via LinesAbove even when TotalWritten is
// itself counting lines.
func (c *Core) TotalBytes() uint64 { return c.totalBytes }

// BufferCap returns the current target buffer size, used by the main
// loop as the read cap when the rate limiter and stop-at-size clamp
// both leave the step unbounded.
func (c *Core) BufferCap() int { return len(c.buffer) }

// BufferPercentage returns the %T value: occupied/size, or -1 while the
// zero-copy path is active.
func (c *Core) BufferPercentage() int {
	if c.spliceUsed {
		return -1
	}
	occupied := c.readPos - c.writePos
	if occupied < 0 {
		occupied = 0
	}
	if len(c.buffer) == 0 {
		return 0
	}
	return occupied * 100 / len(c.buffer)
}

// LastWritten returns the tail-of-writes ring content.
func (c *Core) LastWritten() []byte { return c.lw.last.snapshot() }

// PreviousLine returns the previous completed line.
func (c *Core) PreviousLine() []byte { return c.lw.prevLine }

// PipeBacklog reports how many bytes the consumer has yet to read from
// fd, via FIONREAD on Linux and a no-op elsewhere.
func PipeBacklog(fd int) (int, error) {
	return pipeUnreadBytes(fd)
}

// SetWrittenButNotConsumed records the engine's latest back-pressure
// sample so Transferred() reflects it: transferred = total_written -
// (in-pipe amount).
func (c *Core) SetWrittenButNotConsumed(n uint64) {
	c.writtenButNotConsumed = n
	if n > c.totalWritten {
		n = c.totalWritten
	}
	c.transferred = c.totalWritten - n
}

// WrittenButNotConsumed returns the last sampled back-pressure amount.
func (c *Core) WrittenButNotConsumed() uint64 { return c.writtenButNotConsumed }

// LinesAbove converts an in-pipe byte backlog into an in-pipe line count
// by walking the line-position ring backward.
func (c *Core) LinesAbove(lastConsumedBytePos uint64) int {
	return c.lines.countAbove(lastConsumedBytePos)
}

// StepResult is what one Step call reports back to the main loop.
type StepResult struct {
	BytesWritten int64
	LinesWritten int64
	EOFIn        bool
	EOFOut       bool
}
