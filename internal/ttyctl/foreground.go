package ttyctl

import (
	"syscall"
)

// Foreground reports whether the calling process is in the foreground
// process group of the terminal on fd. A TIOCGPGRP that fails with
// ENOTTY (no controlling terminal — e.g. invoked from a script with
// stdout redirected, or under `nohup`) is treated as "foreground". Any
// other ioctl failure is treated the same way: this is only ever used
// to decide whether to suppress the display, and erring towards showing
// it is the safer default.
func Foreground(fd int) bool {
	pgrp, err := Getpgrp(fd)
	if err != nil {
		return true
	}
	return int(pgrp) == syscall.Getpgrp()
}
