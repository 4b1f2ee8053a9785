// Package remote implements the cross-process option-update channel: a
// sender sends a fixed-layout message into a named, user-scoped queue
// and a receiver dequeues it non-blockingly on its own next tick.
//
// The queue is a directory of one file per pending message rather than
// a SysV/POSIX message queue, so the wire format, the sender's atomic
// rename and the receiver's flock from golang.org/x/sys/unix do the
// real work instead of a second, harder-to-audit IPC primitive.
package remote

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Error wraps a message over an underlying error, matching the error.go
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

const (
	nameFieldLen   = 256
	formatFieldLen = 256

	// pollInterval and drainTimeout implement the sender's poll-for-drain
	// protocol: check every 10ms, give up after 1.1s.
	pollInterval = 10 * time.Millisecond
	drainTimeout = 1100 * time.Millisecond

	// wireLen is the exact byte length of a marshalled Message.
	wireLen = 4 /*pid*/ + 8 /*flags*/ + 8 /*lastWrittenWidth*/ + 8 /*rateLimit*/ +
		8 /*bufferSize*/ + 8 /*size*/ + 8 /*interval*/ + 8 /*width+height*/ +
		2 /*manual bools*/ + nameFieldLen + formatFieldLen
)

// DisplayFlags is the eight boolean display-switch flags carried in a
// Message, one bit per %-component the sender wants turned on or off.
type DisplayFlags struct {
	Progress, Timer, ETA, FinETA, Rate, AverageRate, Bytes, BufferPercent bool
}

// Message is the fixed-layout record exchanged between sender and
// receiver. A zero numeric field means "leave unchanged". Name/Format
// cannot use the same zero-means-unchanged convention, since an empty
// string is itself a valid value ("clear the custom format back to the
// default"), indistinguishable on the wire from "sender never touched
// this field" - so each carries its own NameSet/FormatSet presence bit,
// the same paired-bool shape WidthManual/HeightManual already use for
// "was this one pinned".
type Message struct {
	RecipientPID int32

	Flags DisplayFlags

	LastWrittenWidth uint64
	RateLimit        uint64
	BufferSize       uint64
	Size             uint64
	Interval         float64

	Width, Height             uint32
	WidthManual, HeightManual bool

	Name      string
	NameSet   bool
	Format    string
	FormatSet bool
}

func flagsToByte(f DisplayFlags) byte {
	var b byte
	set := func(bit uint, v bool) {
		if v {
			b |= 1 << bit
		}
	}
	set(0, f.Progress)
	set(1, f.Timer)
	set(2, f.ETA)
	set(3, f.FinETA)
	set(4, f.Rate)
	set(5, f.AverageRate)
	set(6, f.Bytes)
	set(7, f.BufferPercent)
	return b
}

func byteToFlags(b byte) DisplayFlags {
	has := func(bit uint) bool { return b&(1<<bit) != 0 }
	return DisplayFlags{
		Progress:      has(0),
		Timer:         has(1),
		ETA:           has(2),
		FinETA:        has(3),
		Rate:          has(4),
		AverageRate:   has(5),
		Bytes:         has(6),
		BufferPercent: has(7),
	}
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}

// marshal encodes m into the exact bit-for-bit wire layout documented
// in the message-format section of this module's external interface.
func marshal(m Message) []byte {
	buf := make([]byte, wireLen)
	o := 0
	putU32 := func(v uint32) { binary.LittleEndian.PutUint32(buf[o:], v); o += 4 }
	putU64 := func(v uint64) { binary.LittleEndian.PutUint64(buf[o:], v); o += 8 }
	putF64 := func(v float64) { putU64(uint64(int64(v * 1e9))) }

	putU32(uint32(m.RecipientPID))
	buf[o] = flagsToByte(m.Flags)
	o += 8
	putU64(m.LastWrittenWidth)
	putU64(m.RateLimit)
	putU64(m.BufferSize)
	putU64(m.Size)
	putF64(m.Interval)
	putU32(m.Width)
	putU32(m.Height)
	buf[o] = boolByte(m.WidthManual)
	buf[o+1] = boolByte(m.HeightManual)
	o += 2

	putStringField(buf[o:o+nameFieldLen], m.Name, m.NameSet)
	o += nameFieldLen

	putStringField(buf[o:o+formatFieldLen], m.Format, m.FormatSet)
	o += formatFieldLen

	return buf
}

// putStringField encodes s into dst with a one-byte presence marker in
// dst[0]: 0 means "field not present" (the receiver leaves its current
// value alone), 1 means dst[1:] holds s as a NUL-terminated-or-full
// string. This is what lets an explicit "set Name to empty string"
// differ from "sender didn't touch Name" - both would otherwise
// marshal to the same all-zero field.
func putStringField(dst []byte, s string, present bool) {
	if !present {
		return
	}
	dst[0] = 1
	b := []byte(s)
	if len(b) > len(dst)-1 {
		b = b[:len(dst)-1]
	}
	copy(dst[1:], b)
}

func unmarshal(buf []byte) (Message, error) {
	if len(buf) != wireLen {
		return Message{}, Error{msg: fmt.Sprintf("malformed message: %d bytes, want %d", len(buf), wireLen)}
	}
	var m Message
	o := 0
	getU32 := func() uint32 { v := binary.LittleEndian.Uint32(buf[o:]); o += 4; return v }
	getU64 := func() uint64 { v := binary.LittleEndian.Uint64(buf[o:]); o += 8; return v }

	m.RecipientPID = int32(getU32())
	m.Flags = byteToFlags(buf[o])
	o += 8
	m.LastWrittenWidth = getU64()
	m.RateLimit = getU64()
	m.BufferSize = getU64()
	m.Size = getU64()
	m.Interval = float64(int64(getU64())) / 1e9
	m.Width = getU32()
	m.Height = getU32()
	m.WidthManual = buf[o] != 0
	m.HeightManual = buf[o+1] != 0
	o += 2

	m.Name, m.NameSet = getStringField(buf[o : o+nameFieldLen])
	o += nameFieldLen
	m.Format, m.FormatSet = getStringField(buf[o : o+formatFieldLen])
	o += formatFieldLen

	return m, nil
}

// getStringField is putStringField's inverse: present is false (and s
// is "") when src[0] is the zero marker byte.
func getStringField(src []byte) (s string, present bool) {
	if src[0] == 0 {
		return "", false
	}
	return cstring(src[1:]), true
}

func cstring(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// QueueDir returns the user-scoped directory the message queue lives
// in: $XDG_RUNTIME_DIR/pv if set, else $HOME/.pv.
func QueueDir() (string, error) {
	if rt := os.Getenv("XDG_RUNTIME_DIR"); rt != "" {
		return filepath.Join(rt, "pv"), nil
	}
	home := os.Getenv("HOME")
	if home == "" {
		return "", Error{msg: "neither XDG_RUNTIME_DIR nor HOME is set"}
	}
	return filepath.Join(home, ".pv"), nil
}

func messagePath(dir string, pid int) string {
	return filepath.Join(dir, fmt.Sprintf("%d.msg", pid))
}

// Send delivers m to m.RecipientPID, blocking until the target drains
// it or drainTimeout elapses. It first confirms the target process
// exists (signal 0), matching the sender's "check the target process
// exists" precondition.
func Send(m Message) error {
	if err := syscall.Kill(int(m.RecipientPID), 0); err != nil {
		return Error{msg: fmt.Sprintf("process %d not found", m.RecipientPID), err: err}
	}
	m.Width = clampDim(m.Width)
	m.Height = clampDim(m.Height)
	if m.Interval != 0 {
		m.Interval = clampInterval(m.Interval)
	}

	dir, err := QueueDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return Error{msg: "create queue dir", err: err}
	}

	path := messagePath(dir, int(m.RecipientPID))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, marshal(m), 0o600); err != nil {
		return Error{msg: "write message", err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return Error{msg: "enqueue message", err: err}
	}

	deadline := time.Now().Add(drainTimeout)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil
		}
		time.Sleep(pollInterval)
	}
	os.Remove(path)
	return Error{msg: "target did not drain message within timeout"}
}

// clampDim caps width/height at 999999. Zero, which means "leave
// unchanged", passes through as is; any other value is already at
// least 1.
func clampDim(v uint32) uint32 {
	if v == 0 {
		return 0
	}
	if v > 999999 {
		return 999999
	}
	return v
}

// clampInterval enforces the [0.1s, 600s] interval range.
func clampInterval(v float64) float64 {
	if v < 0.1 {
		return 0.1
	}
	if v > 600 {
		return 600
	}
	return v
}

// Receiver performs the non-blocking dequeue side: it owns the queue
// file for its own pid and checks it once per call.
type Receiver struct {
	PID int
	dir string
}

// NewReceiver resolves the queue directory for the calling process.
func NewReceiver(pid int) (*Receiver, error) {
	dir, err := QueueDir()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, Error{msg: "create queue dir", err: err}
	}
	return &Receiver{PID: pid, dir: dir}, nil
}

// Poll performs one non-blocking dequeue attempt. ok is false when no
// message is pending. The sender writes a temporary file and renames it
// into place, so Poll only ever opens a complete message; the file lock
// (flock) serialises concurrent Poll calls on the same file. The sender
// does not take the lock.
func (r *Receiver) Poll() (msg Message, ok bool, err error) {
	path := messagePath(r.dir, r.PID)
	f, ferr := os.OpenFile(path, os.O_RDONLY, 0)
	if ferr != nil {
		if os.IsNotExist(ferr) {
			return Message{}, false, nil
		}
		// Reopen-on-error per this channel's "terminal queue errors
		// reopen the queue" contract: surface nothing, try again next tick.
		return Message{}, false, nil
	}
	defer f.Close()

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		return Message{}, false, Error{msg: "lock message file", err: err}
	}
	defer unix.Flock(int(f.Fd()), unix.LOCK_UN)

	buf := make([]byte, wireLen)
	if _, err := readFull(f, buf); err != nil {
		os.Remove(path)
		return Message{}, false, Error{msg: "read message", err: err}
	}
	m, err := unmarshal(buf)
	if err != nil {
		os.Remove(path)
		return Message{}, false, err
	}
	os.Remove(path)
	return m, true, nil
}

func readFull(f *os.File, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := f.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			break
		}
	}
	if total != len(buf) {
		return total, Error{msg: "short read"}
	}
	return total, nil
}
