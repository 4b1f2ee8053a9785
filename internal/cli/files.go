// Package cli provides the concrete file/stdio collaborators cmd/pv
// wires into the engine: a BlockSizer-aware transfer.Input/Output over
// *os.File, and an InputSource that walks a fixed list of paths (or
// standard input when none are given). Locating inputs dynamically
// (directory watches, --watchfd) is out of scope; this is the minimal
// stand-in the engine needs to run end to end.
package cli

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/daedaluz/pv/internal/transfer"
)

// File adapts *os.File to transfer.Input/transfer.Output.
type File struct {
	f      *os.File
	isPipe bool
}

// OpenFile wraps an already-open file, stat-ing it once to classify
// pipe-ness for the splice gate.
func OpenFile(f *os.File) *File {
	isPipe := false
	if fi, err := f.Stat(); err == nil {
		isPipe = fi.Mode()&os.ModeNamedPipe != 0 || fi.Mode()&os.ModeSocket != 0
	}
	return &File{f: f, isPipe: isPipe}
}

func (x *File) Read(p []byte) (int, error)  { return x.f.Read(p) }
func (x *File) Write(p []byte) (int, error) { return x.f.Write(p) }
func (x *File) Fd() int                     { return int(x.f.Fd()) }
func (x *File) IsPipe() bool                { return x.isPipe }
func (x *File) Seekable() bool              { return !x.isPipe }
func (x *File) Seek(offset int64, whence int) (int64, error) {
	return x.f.Seek(offset, whence)
}
func (x *File) Close() error { return x.f.Close() }

// BlockSize implements engine.BlockSizer via fstat's st_blksize.
func (x *File) BlockSize() int {
	var st unix.Stat_t
	if err := unix.Fstat(x.Fd(), &st); err != nil {
		return 0
	}
	return int(st.Blksize)
}

// PathSource is an engine.InputSource over a fixed path list; an empty
// list means "read standard input once".
type PathSource struct {
	paths []string
	next  int
	cur   *File
}

// NewPathSource builds a PathSource over paths, in order.
func NewPathSource(paths []string) *PathSource {
	return &PathSource{paths: paths}
}

func (s *PathSource) Open() (transfer.Input, bool, error) {
	if err := s.Close(); err != nil {
		return nil, false, err
	}
	s.cur = nil
	if len(s.paths) == 0 {
		if s.next > 0 {
			return nil, false, nil
		}
		s.next = 1
		s.cur = OpenFile(os.Stdin)
		return s.cur, true, nil
	}
	if s.next >= len(s.paths) {
		return nil, false, nil
	}
	path := s.paths[s.next]
	s.next++
	f, err := os.Open(path)
	if err != nil {
		return nil, false, err
	}
	s.cur = OpenFile(f)
	return s.cur, true, nil
}

func (s *PathSource) Close() error {
	if s.cur == nil {
		return nil
	}
	if s.cur.f == os.Stdin {
		return nil
	}
	return s.cur.Close()
}
