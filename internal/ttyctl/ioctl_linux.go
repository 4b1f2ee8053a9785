// Package ttyctl wraps the handful of termios/window-size/process-group
// ioctls the signal & terminal supervisor and the display driver need,
// trimmed to the requests this program actually issues: baud rate,
// modem line, RS-485 and break-signal ioctls have no use in a pipe
// viewer and are not carried over.
package ttyctl

import (
	"unsafe"

	ioctl "github.com/daedaluz/goioctl"
)

var (
	tcgets     = uintptr(0x5401)
	tcsets     = uintptr(0x5402)
	tiocgwinsz = uintptr(0x5413)
	tiocswinsz = uintptr(0x5414)
	tiocgpgrp  = uintptr(0x540F)
	tiocspgrp  = uintptr(0x5410)
)

// Termios mirrors struct termios on Linux, trimmed to the fields the
// supervisor touches (the local-mode flags, for TOSTOP).
type Termios struct {
	Iflag uint32
	Oflag uint32
	Cflag uint32
	Lflag uint32
	Line  byte
	Cc    [19]byte
}

const tostop = 0x00000100

// GetTermios issues TCGETS on fd.
func GetTermios(fd int) (*Termios, error) {
	t := &Termios{}
	if err := ioctl.Ioctl(uintptr(fd), tcgets, uintptr(unsafe.Pointer(t))); err != nil {
		return nil, wrapErr("get termios", err)
	}
	return t, nil
}

// SetTermios issues TCSETS on fd.
func SetTermios(fd int, t *Termios) error {
	return wrapErr("set termios", ioctl.Ioctl(uintptr(fd), tcsets, uintptr(unsafe.Pointer(t))))
}

// TOSTOPSet reports whether the TOSTOP local-mode bit is set.
func (t *Termios) TOSTOPSet() bool {
	return t.Lflag&tostop != 0
}

// SetTOSTOP sets or clears the TOSTOP bit in place.
func (t *Termios) SetTOSTOP(on bool) {
	if on {
		t.Lflag |= tostop
	} else {
		t.Lflag &^= tostop
	}
}

// Winsize mirrors struct winsize.
type Winsize struct {
	Rows, Cols, Xpixel, Ypixel uint16
}

// GetWinsize issues TIOCGWINSZ on fd.
func GetWinsize(fd int) (*Winsize, error) {
	ws := &Winsize{}
	if err := ioctl.Ioctl(uintptr(fd), tiocgwinsz, uintptr(unsafe.Pointer(ws))); err != nil {
		return nil, wrapErr("get winsize", err)
	}
	return ws, nil
}

// SetWinsize issues TIOCSWINSZ on fd. Nothing in this module calls it.
func SetWinsize(fd int, ws *Winsize) error {
	return wrapErr("set winsize", ioctl.Ioctl(uintptr(fd), tiocswinsz, uintptr(unsafe.Pointer(ws))))
}

// Getpgrp issues TIOCGPGRP on fd, returning the foreground process group.
func Getpgrp(fd int) (int32, error) {
	var pgrp int32
	if err := ioctl.Ioctl(uintptr(fd), tiocgpgrp, uintptr(unsafe.Pointer(&pgrp))); err != nil {
		return 0, wrapErr("get pgrp", err)
	}
	return pgrp, nil
}
