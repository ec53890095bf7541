package dispatcher

import (
	"os"
	"os/signal"
	"syscall"
)

// ignoredSignals never reach the server. Job control and user signals must
// not stop or kill a generation.
var ignoredSignals = []os.Signal{
	syscall.SIGUSR1,
	syscall.SIGUSR2,
	syscall.SIGALRM,
	syscall.SIGTTIN,
	syscall.SIGTTOU,
	syscall.SIGTSTP,
	syscall.SIGPIPE,
}

// handledSignals are delivered to the event loop.
var handledSignals = []os.Signal{
	syscall.SIGHUP,
	syscall.SIGTERM,
	syscall.SIGINT,
}

// subscribe sets the signal disposition and returns the channel of handled
// signals together with a function that undoes the subscription.
func subscribe() (<-chan os.Signal, func()) {
	signal.Ignore(ignoredSignals...)

	ch := make(chan os.Signal, len(handledSignals))
	signal.Notify(ch, handledSignals...)
	return ch, func() { signal.Stop(ch) }
}

func isReload(sig os.Signal) bool {
	return sig == syscall.SIGHUP
}

func isTerminate(sig os.Signal) bool {
	return sig == syscall.SIGTERM || sig == syscall.SIGINT
}
