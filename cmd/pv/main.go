// Command pv drives the transfer engine end to end: it wires a
// PathSource/File pair from the command line, the signal/terminal
// supervisor, the remote receiver, and the display driver, then calls
// Engine.Run and maps its exit-status bitmask (§7) onto os.Exit.
//
// Flag parsing here is intentionally minimal - a handful of flags
// covering the options the engine actually consumes, not a full
// argument surface. Input-file discovery beyond a literal path list,
// --watchfd and cursor-sharing IPC remain out of scope.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/daedaluz/pv/internal/cli"
	"github.com/daedaluz/pv/internal/clock"
	"github.com/daedaluz/pv/internal/control"
	"github.com/daedaluz/pv/internal/display"
	"github.com/daedaluz/pv/internal/engine"
	"github.com/daedaluz/pv/internal/pidfile"
	"github.com/daedaluz/pv/internal/remote"
	"github.com/daedaluz/pv/internal/sigterm"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := control.Default()

	var (
		size        uint64
		rateLimit   uint64
		bufferSize  uint64
		lineMode    bool
		nullDelim   bool
		numeric     bool
		force       bool
		wait        bool
		discard     bool
		noSplice    bool
		showStats   bool
		bits        bool
		si          bool
		format      string
		name        string
		pidfilePath string
		remotePID   int
	)

	flag.Uint64Var(&size, "s", 0, "expected total size in bytes")
	flag.Uint64Var(&rateLimit, "L", 0, "rate limit in bytes/s")
	flag.Uint64Var(&bufferSize, "B", 0, "target buffer size in bytes")
	flag.BoolVar(&lineMode, "l", false, "count lines instead of bytes")
	flag.BoolVar(&nullDelim, "0", false, "use NUL as the line delimiter in line mode")
	flag.BoolVar(&numeric, "n", false, "numeric output mode")
	flag.BoolVar(&force, "f", false, "show the display even when backgrounded or not a terminal")
	flag.BoolVar(&wait, "W", false, "delay the display/timer until the first byte is seen")
	flag.BoolVar(&discard, "x", false, "discard output instead of writing it")
	flag.BoolVar(&noSplice, "no-splice", false, "disable the zero-copy splice path")
	flag.BoolVar(&showStats, "show-stats", false, "print a final rate statistics summary")
	flag.BoolVar(&bits, "b", false, "display rate/bytes in bits")
	flag.BoolVar(&si, "si", false, "use SI (decimal) size units instead of IEC")
	flag.StringVar(&format, "F", "", "custom format string")
	flag.StringVar(&name, "N", "", "name shown in the display")
	flag.StringVar(&pidfilePath, "P", "", "write the process id to this path")
	flag.IntVar(&remotePID, "R", 0, "send a reconfiguration message to pid instead of transferring")
	flag.Parse()

	if remotePID > 0 {
		nameSet, formatSet := false, false
		flag.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "N":
				nameSet = true
			case "F":
				formatSet = true
			}
		})
		return sendRemote(remotePID, name, nameSet, format, formatSet, rateLimit, bufferSize, size)
	}

	cfg.Size = size
	cfg.RateLimit = rateLimit
	cfg.BufferSize = bufferSize
	cfg.Null = nullDelim
	cfg.Numeric = numeric
	cfg.Force = force
	cfg.Wait = wait
	cfg.Discard = discard
	cfg.NoSplice = noSplice
	cfg.ShowStats = showStats
	cfg.Bits = bits
	cfg.Format = format
	cfg.Name = name
	cfg.Pidfile = pidfilePath
	cfg.StopAtSize = size > 0
	if lineMode {
		cfg.Count = control.CountLines
	}
	if si {
		cfg.Units = control.UnitsSI
	}
	if name == "" && flag.NArg() > 0 {
		cfg.Name = flag.Arg(0)
	}

	if err := pidfile.Write(cfg.Pidfile); err != nil {
		fmt.Fprintln(os.Stderr, "pv:", err)
		return int(engine.StatusAllocFailed)
	}
	defer pidfile.Remove(cfg.Pidfile)

	ttyFd := -1
	outIsTerminal := false
	if isatty.IsTerminal(os.Stderr.Fd()) {
		ttyFd = int(os.Stderr.Fd())
	}
	if isatty.IsTerminal(os.Stdout.Fd()) {
		outIsTerminal = true
	}

	sup := sigterm.New(ttyFd, clock.Real{})

	mode := display.ModeDefault
	if numeric {
		mode = display.ModeNumeric
	}
	out := cli.OpenFile(os.Stdout)
	drv := &display.Driver{
		Mode:      mode,
		Out:       os.Stderr,
		TTYFd:     ttyFd,
		Force:     force,
		Suspended: sup.SuspendStderr,
	}
	if !outIsTerminal {
		drv.TTYFd = -1
	}

	receiver, err := remote.NewReceiver(os.Getpid())
	if err != nil {
		fmt.Fprintln(os.Stderr, "pv: remote receiver:", err)
		receiver = nil
	}

	eng := &engine.Engine{
		Config:   cfg,
		Source:   cli.NewPathSource(flag.Args()),
		Output:   out,
		Clock:    clock.Real{},
		TTYFd:    ttyFd,
		Receiver: receiver,
		Sup:      sup,
		Display:  drv,
	}

	status, runErr := eng.Run()
	if runErr != nil {
		fmt.Fprintln(os.Stderr, "pv:", runErr)
	}
	return int(status)
}

func sendRemote(pid int, name string, nameSet bool, format string, formatSet bool, rateLimit, bufferSize, size uint64) int {
	msg := remote.Message{
		RecipientPID: int32(pid),
		Name:         name,
		NameSet:      nameSet,
		Format:       format,
		FormatSet:    formatSet,
		RateLimit:    rateLimit,
		BufferSize:   bufferSize,
		Size:         size,
	}
	if err := remote.Send(msg); err != nil {
		fmt.Fprintln(os.Stderr, "pv:", err)
		return 1
	}
	return 0
}

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [options] [file ...]\n", os.Args[0])
		flag.PrintDefaults()
	}
}
