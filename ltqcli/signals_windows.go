//go:build windows

package ltqcli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
)

// waitForSignal blocks until os.Interrupt, grounded on the teacher's
// Windows waitForSignals in signals_windows.go.
func waitForSignal(stdout io.Writer, target string) {
	fmt.Fprintf(stdout, "listening for signals (target=%s)...\n", target)
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	<-sigs
}
