//go:build windows

package daemon

import "os"

// daemonSignals are the signals RunUntilSignal treats as a shutdown request.
// Windows has no SIGTERM delivery in the unix sense; os.Interrupt is what a
// CTRL_BREAK_EVENT surfaces as to a Go signal handler.
var daemonSignals = []os.Signal{os.Interrupt}
