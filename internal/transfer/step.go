package transfer

import (
	"errors"
	"fmt"
	"io"
	"syscall"

	"github.com/daedaluz/fdev/poll"
)

// Step advances the transfer by one call. cansend bounds how many bytes
// may be written this step (0 means "unlimited for this call", the main
// loop having already accounted for the token bucket and stop-at-size
// clamp). unlimitedBuffer selects target_buffer_size as the read cap
// when cansend is 0.
func (c *Core) Step(in Input, out Output, cansend int64, unlimitedBuffer int64) (StepResult, error) {
	if trySplice(c, in, out) {
		return c.spliceStep(in, out, cansend)
	}
	c.spliceUsed = false
	return c.bufferedStep(in, out, cansend, unlimitedBuffer)
}

func trySplice(c *Core, in Input, out Output) bool {
	if !c.Features.splicePermitted(in.IsPipe(), out.IsPipe()) {
		return false
	}
	if c.spliceFailedFd[in.Fd()] || c.spliceFailedFd[out.Fd()] {
		return false
	}
	return spliceAvailable
}

// bufferedStep implements the non-zero-copy read/write path.
func (c *Core) bufferedStep(in Input, out Output, cansend, unlimitedBuffer int64) (StepResult, error) {
	var res StepResult

	readCap := cansend
	if readCap <= 0 {
		readCap = unlimitedBuffer
	}
	if readCap > MaxReadAtOnce {
		readCap = MaxReadAtOnce
	}

	if space := len(c.buffer) - c.readPos; space > 0 {
		toRead := int64(space)
		if readCap > 0 && readCap < toRead {
			toRead = readCap
		}
		if toRead > 0 {
			n, eof, err := c.readChunk(in, c.buffer[c.readPos:int64(c.readPos)+toRead])
			if err != nil {
				return res, err
			}
			c.readPos += n
			res.EOFIn = eof
		}
	} else {
		res.EOFIn = false
	}

	writeLimit := int64(c.readPos - c.writePos)
	if cansend > 0 && cansend < writeLimit {
		writeLimit = cansend
	}
	if writeLimit > MaxWriteAtOnce {
		writeLimit = MaxWriteAtOnce
	}
	if writeLimit > 0 {
		chunk := c.buffer[c.writePos : int64(c.writePos)+writeLimit]
		written, lines, err := c.writeChunk(out, chunk)
		if err != nil {
			return res, err
		}
		c.writePos += int(written)
		res.BytesWritten = written
		res.LinesWritten = lines
		if c.writePos == c.readPos {
			c.writePos = 0
			c.readPos = 0
		}
	}
	// Output is finished once input has ended and the buffer is drained.
	if res.EOFIn && c.readPos == c.writePos {
		res.EOFOut = true
	}

	return res, nil
}

// readChunk performs one bounded-timeout read, applying the skip-errors
// policy on transient failures.
func (c *Core) readChunk(in Input, dst []byte) (n int, eof bool, err error) {
	if fd := in.Fd(); fd >= 0 {
		if werr := poll.WaitInput(fd, ReadTimeout); werr != nil {
			if errors.Is(werr, poll.ErrTimeout) {
				return 0, false, nil
			}
			// Not a real read error; surface EOF-style soft stop for an
			// unreadable descriptor rather than treating it as fatal.
			return 0, true, nil
		}
	}
	got, rerr := in.Read(dst)
	if rerr != nil {
		if rerr == io.EOF {
			return got, true, nil
		}
		if c.Features.SkipErrors {
			return c.handleReadError(in, dst)
		}
		return got, false, Error{msg: "read error", err: rerr}
	}
	if got == 0 {
		return 0, true, nil
	}
	c.readErrorsInARow = 0
	return got, false, nil
}

// writeChunk performs one bounded-timeout write (or a --discard no-op),
// classifying fatal vs. orderly pipe closure.
func (c *Core) writeChunk(out Output, src []byte) (written int64, lines int64, err error) {
	if c.Features.Discard {
		c.accountWrite(src)
		return int64(len(src)), c.linesIn(src), nil
	}
	if fd := out.Fd(); fd >= 0 {
		if werr := poll.WaitOutput(fd, WriteTimeout); werr != nil {
			if errors.Is(werr, poll.ErrTimeout) {
				return 0, 0, nil
			}
		}
	}
	n, werr := out.Write(src)
	if n > 0 {
		c.accountWrite(src[:n])
	}
	if werr != nil {
		if errors.Is(werr, syscall.EPIPE) {
			return int64(n), c.linesIn(src[:n]), ErrPipeClosed
		}
		if errors.Is(werr, syscall.EINTR) || errors.Is(werr, syscall.EAGAIN) {
			return int64(n), c.linesIn(src[:n]), nil
		}
		return int64(n), c.linesIn(src[:n]), fmt.Errorf("%w: %w", ErrFatalWrite, werr)
	}
	return int64(n), c.linesIn(src[:n]), nil
}

func (c *Core) linesIn(p []byte) int64 {
	n := int64(0)
	for _, b := range p {
		if b == c.delimiter {
			n++
		}
	}
	return n
}

func (c *Core) accountWrite(p []byte) {
	lines := c.linesIn(p)
	prevBytes := c.totalBytes
	c.totalBytes += uint64(len(p))

	if c.Features.LineMode {
		c.totalWritten += uint64(lines)
	} else {
		c.totalWritten += uint64(len(p))
	}
	c.transferred = c.totalWritten

	// The line-position ring always keys on cumulative output BYTE
	// position (§4.2), even in line-mode, so the engine can convert a
	// byte-denominated pipe backlog into a line backlog.
	for i, b := range p {
		if b == c.delimiter {
			c.lines.push(prevBytes + uint64(i) + 1)
		}
	}
	c.lw.observe(p, c.delimiter, c.lastWrittenWidth)
}

// SetLastWrittenWidth records the widest %<n>A seen in the compiled
// format: the last-written ring grows to this length (at most 256 bytes)
// on the next write and never shrinks.
func (c *Core) SetLastWrittenWidth(n int) { c.lastWrittenWidth = n }
