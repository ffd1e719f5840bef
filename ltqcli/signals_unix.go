//go:build !windows

package ltqcli

import (
	"fmt"
	"io"
	"os"
	"os/signal"

	"golang.org/x/sys/unix"
)

// waitForSignal blocks until SIGTERM or SIGINT, grounded on the teacher's
// waitForSignals in signals_unix.go. The teacher treats SIGTSTP as a
// "soft stop" that calls Server.Stop and keeps waiting; this CLI has no
// equivalent partial-stop (a Worker's Stop already drains and returns),
// so SIGTSTP is just logged and otherwise ignored here.
func waitForSignal(stdout io.Writer, target string) {
	fmt.Fprintf(stdout, "listening for signals (target=%s)...\n", target)
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, unix.SIGTERM, unix.SIGINT, unix.SIGTSTP)
	for {
		sig := <-sigs
		if sig == unix.SIGTSTP {
			fmt.Fprintln(stdout, "SIGTSTP received, ignoring (no partial-stop in this CLI)")
			continue
		}
		return
	}
}
