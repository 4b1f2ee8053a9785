package display

import "os"

// SetProcessTitle is the host's setproctitle equivalent. It is a no-op
// on every platform: the process title is never changed. It returns no
// error.
func SetProcessTitle(title string) {
	_ = title
	_ = os.Args
}
