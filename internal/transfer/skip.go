package transfer

import (
	"fmt"
	"io"
	"os"
)

// SkipErrorsConfig controls the adaptive vs fixed-block read-error skip
// policy.
type SkipErrorsConfig struct {
	Enabled    bool
	Quiet      bool // --skip-errors given twice: suppress all but first warning
	FixedBlock uint64 // 0 = adaptive mode
}

// handleReadError implements the --skip-errors policy: the first
// occurrence per input warns once, then either the adaptive
// 1,2,4,...,512-byte skip (filling the buffer with nulls, seeking past
// the bad area when possible) or a fixed-block round-up-and-seek.
func (c *Core) handleReadError(in Input, dst []byte) (n int, eof bool, err error) {
	if !c.skipWarned {
		fmt.Fprintf(os.Stderr, "pv: warning: error reading input\n")
		c.skipWarned = true
	} else if !c.skipQuiet {
		fmt.Fprintf(os.Stderr, "pv: warning: error reading input\n")
	}

	var skip int
	if c.skipFixedBlock > 0 {
		skip = int(c.skipFixedBlock)
	} else {
		c.readErrorsInARow++
		skip = 1 << uint(c.readErrorsInARow-1)
		if skip > 512 {
			skip = 512
		}
	}
	if skip > len(dst) {
		skip = len(dst)
	}
	for i := 0; i < skip; i++ {
		dst[i] = 0
	}
	if in.Seekable() {
		if c.skipFixedBlock > 0 {
			cur, serr := in.Seek(0, io.SeekCurrent)
			if serr == nil {
				block := int64(c.skipFixedBlock)
				target := ((cur / block) + 1) * block
				in.Seek(target, io.SeekStart)
			}
		} else {
			in.Seek(int64(skip), io.SeekCurrent)
		}
	}
	return skip, false, nil
}

// SetSkipErrors configures the policy: --skip-errors given twice
// suppresses all but the first warning per file.
func (c *Core) SetSkipErrors(cfg SkipErrorsConfig) {
	c.Features.SkipErrors = cfg.Enabled
	c.skipQuiet = cfg.Quiet
	c.skipFixedBlock = cfg.FixedBlock
}

// ResetForNewInput clears the per-input skip-warning/error-count state:
// each new input gets its own first-occurrence warning.
func (c *Core) ResetForNewInput() {
	c.skipWarned = false
	c.readErrorsInARow = 0
}
