package transfer

import (
	"bytes"
	"io"
	"testing"
)

type fakeInput struct {
	r        *bytes.Reader
	fd       int
	seekable bool
	pipe     bool
}

func (f *fakeInput) Read(p []byte) (int, error)          { return f.r.Read(p) }
func (f *fakeInput) Fd() int                              { return f.fd }
func (f *fakeInput) Seekable() bool                       { return f.seekable }
func (f *fakeInput) Seek(off int64, whence int) (int64, error) { return f.r.Seek(off, whence) }
func (f *fakeInput) IsPipe() bool                         { return f.pipe }

type fakeOutput struct {
	buf  bytes.Buffer
	fd   int
	pipe bool
}

func (f *fakeOutput) Write(p []byte) (int, error) { return f.buf.Write(p) }
func (f *fakeOutput) Fd() int                      { return f.fd }
func (f *fakeOutput) IsPipe() bool                 { return f.pipe }

// TestBufferedPathByteFidelity drives Step repeatedly over the buffered
// (non-splice) path and checks every byte arrives at the output in
// order, with no duplication or loss.
func TestBufferedPathByteFidelity(t *testing.T) {
	payload := bytes.Repeat([]byte("abcdefghij"), 1000)
	in := &fakeInput{r: bytes.NewReader(payload), fd: -1, seekable: true}
	out := &fakeOutput{fd: -1}

	c := New(256, Features{}, '\n')
	for i := 0; i < len(payload)*4; i++ {
		res, err := c.Step(in, out, 64, 256)
		if err != nil {
			t.Fatalf("Step() error = %v", err)
		}
		if res.EOFIn && c.readPos == c.writePos {
			break
		}
	}
	if !bytes.Equal(out.buf.Bytes(), payload) {
		t.Fatalf("output mismatch: got %d bytes, want %d bytes", out.buf.Len(), len(payload))
	}
	if c.TotalWritten() != uint64(len(payload)) {
		t.Fatalf("TotalWritten() = %d, want %d", c.TotalWritten(), len(payload))
	}
}

// TestLineModeCounting verifies that in line-mode, TotalWritten counts
// delimiters rather than bytes.
func TestLineModeCounting(t *testing.T) {
	payload := []byte("one\ntwo\nthree\nfour\n")
	in := &fakeInput{r: bytes.NewReader(payload), fd: -1, seekable: true}
	out := &fakeOutput{fd: -1}

	c := New(256, Features{LineMode: true}, '\n')
	for i := 0; i < 10; i++ {
		res, err := c.Step(in, out, 0, 256)
		if err != nil {
			t.Fatalf("Step() error = %v", err)
		}
		if res.EOFIn && c.readPos == c.writePos {
			break
		}
	}
	if c.TotalWritten() != 4 {
		t.Fatalf("TotalWritten() = %d, want 4 lines", c.TotalWritten())
	}
	if !bytes.Equal(out.buf.Bytes(), payload) {
		t.Fatalf("output bytes mismatch in line mode")
	}
}

// TestDiscardDropsOutput verifies --discard still advances the written
// counters without writing any bytes to the output.
func TestDiscardDropsOutput(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), 500)
	in := &fakeInput{r: bytes.NewReader(payload), fd: -1, seekable: true}
	out := &fakeOutput{fd: -1}

	c := New(128, Features{Discard: true}, '\n')
	for i := 0; i < 20; i++ {
		res, err := c.Step(in, out, 0, 128)
		if err != nil {
			t.Fatalf("Step() error = %v", err)
		}
		if res.EOFIn && c.readPos == c.writePos {
			break
		}
	}
	if out.buf.Len() != 0 {
		t.Fatalf("discard mode wrote %d bytes to output, want 0", out.buf.Len())
	}
	if c.TotalWritten() != uint64(len(payload)) {
		t.Fatalf("TotalWritten() = %d, want %d", c.TotalWritten(), len(payload))
	}
}

// TestSkipErrorsAdaptiveDoubling exercises the adaptive skip-block
// growth: each consecutive read error doubles the skip width up to 512.
func TestSkipErrorsAdaptiveDoubling(t *testing.T) {
	c := New(1024, Features{SkipErrors: true}, '\n')
	in := &fakeInput{r: bytes.NewReader(nil), fd: -1, seekable: false}
	dst := make([]byte, 1024)

	want := []int{1, 2, 4, 8}
	for _, w := range want {
		n, eof, err := c.handleReadError(in, dst)
		if err != nil || eof {
			t.Fatalf("handleReadError() = (%d, %v, %v), want no error/eof", n, eof, err)
		}
		if n != w {
			t.Fatalf("handleReadError() skip = %d, want %d", n, w)
		}
	}
}

// TestSkipErrorsFixedBlock verifies fixed-block mode always returns the
// configured block size regardless of repeated errors.
func TestSkipErrorsFixedBlock(t *testing.T) {
	c := New(1024, Features{SkipErrors: true}, '\n')
	c.SetSkipErrors(SkipErrorsConfig{Enabled: true, FixedBlock: 64})
	in := &fakeInput{r: bytes.NewReader(nil), fd: -1, seekable: false}
	dst := make([]byte, 1024)

	for i := 0; i < 3; i++ {
		n, _, err := c.handleReadError(in, dst)
		if err != nil {
			t.Fatalf("handleReadError() error = %v", err)
		}
		if n != 64 {
			t.Fatalf("handleReadError() skip = %d, want fixed block 64", n)
		}
	}
}

// TestResizePreservesPendingData checks Resize keeps any bytes already
// staged between writePos and readPos.
func TestResizePreservesPendingData(t *testing.T) {
	c := New(16, Features{}, '\n')
	copy(c.buffer, []byte("hello world"))
	c.readPos = 11

	c.Resize(64)
	if got := string(c.buffer[:c.readPos]); got != "hello world" {
		t.Fatalf("Resize() lost staged data: got %q", got)
	}
	if len(c.buffer) != 64 {
		t.Fatalf("Resize() buffer len = %d, want 64", len(c.buffer))
	}
}

var _ io.Reader = (*fakeInput)(nil)
