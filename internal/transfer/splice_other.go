//go:build !linux

package transfer

// spliceAvailable is false on platforms without splice(2); the buffered
// path becomes the only path.
const spliceAvailable = false

func (c *Core) spliceStep(in Input, out Output, cansend int64) (StepResult, error) {
	return c.bufferedStep(in, out, cansend, int64(len(c.buffer)))
}

func pipeUnreadBytes(fd int) (int, error) {
	return 0, nil
}
