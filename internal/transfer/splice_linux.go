//go:build linux

package transfer

import (
	"errors"

	"golang.org/x/sys/unix"
)

// spliceAvailable gates the zero-copy path at compile time; only Linux
// has splice(2). Uses golang.org/x/sys/unix for the raw syscall, since
// the goioctl/fdev dependencies do not wrap splice.
const spliceAvailable = true

// spliceStep moves bytes directly between the input and output pipe
// buffers without staging them in c.buffer.
// On EINVAL or any other unsupported error for a given fd, the fd is
// remembered and the zero-copy path is never retried for it.
func (c *Core) spliceStep(in Input, out Output, cansend int64) (StepResult, error) {
	c.spliceUsed = true
	var res StepResult

	toMove := cansend
	if toMove <= 0 || toMove > MaxReadAtOnce {
		toMove = MaxReadAtOnce
	}

	n, err := unix.Splice(in.Fd(), nil, out.Fd(), nil, int(toMove), unix.SPLICE_F_NONBLOCK|unix.SPLICE_F_MOVE)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
			return res, nil
		}
		// Remember the failing fd(s) and fall back permanently.
		c.spliceFailedFd[in.Fd()] = true
		c.spliceFailedFd[out.Fd()] = true
		c.spliceUsed = false
		return c.bufferedStep(in, out, cansend, int64(len(c.buffer)))
	}
	if n == 0 {
		res.EOFIn = true
		res.EOFOut = true
		return res, nil
	}
	c.totalWritten += uint64(n)
	c.totalBytes += uint64(n)
	c.transferred = c.totalWritten
	res.BytesWritten = n
	return res, nil
}

// pipeUnreadBytes reads back FIONREAD on fd to measure consumer
// back-pressure.
func pipeUnreadBytes(fd int) (int, error) {
	n, err := unix.IoctlGetInt(fd, unix.FIONREAD)
	if err != nil {
		return 0, err
	}
	return n, nil
}
