package engine

import (
	"os"
	"os/signal"
	"syscall"
)

// notifySIGHUP arranges for SIGHUP to be delivered on ch. syscall.SIGHUP is
// defined on every platform Go targets, though only POSIX systems actually
// raise it; on platforms that never send it, the channel simply never
// fires and config reload remains available via the ConfigWatcher.
func notifySIGHUP(ch chan os.Signal) {
	signal.Notify(ch, syscall.SIGHUP)
}

func stopSIGHUP(ch chan os.Signal) {
	signal.Stop(ch)
}
