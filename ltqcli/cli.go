package ltqcli

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/tclesius/ltq"
	"github.com/tclesius/ltq/internal/log"
)

// Exit codes (spec §6): 0 clean shutdown, 1 unrecoverable startup error,
// 2 CLI misuse.
const (
	ExitOK       = 0
	ExitStartup  = 1
	ExitUsage    = 2
)

// Main runs the CLI against os.Args and returns the resulting exit code.
// A user program's func main is expected to be exactly:
//
//	func main() { os.Exit(ltqcli.Main(registry)) }
func Main(registry *Registry) int {
	return Run(registry, os.Args[1:], os.Stdout, os.Stderr)
}

// Run implements the run/clear/size surface of spec.md §6 against args,
// writing to stdout/stderr and returning an exit code instead of calling
// os.Exit, so it can be exercised from tests.
func Run(registry *Registry, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, "usage: ltq <run|clear|size> ...")
		return ExitUsage
	}

	switch args[0] {
	case "run":
		return runCmd(registry, args[1:], stdout, stderr)
	case "clear":
		return clearCmd(args[1:], stdout, stderr)
	case "size":
		return sizeCmd(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", args[0])
		return ExitUsage
	}
}

func runCmd(registry *Registry, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	isApp := fs.Bool("app", false, "resolve target as an App rather than a Worker")
	concurrency := fs.Int("concurrency", 0, "override worker concurrency")
	logLevel := fs.String("log-level", "", "minimum log level (debug|info|warn|error|fatal)")
	if err := fs.Parse(args); err != nil {
		return ExitUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "usage: ltq run [--app] [--concurrency N] [--log-level LEVEL] <target>")
		return ExitUsage
	}
	target := fs.Arg(0)

	var level log.Level
	var hasLevel bool
	if *logLevel != "" {
		l, ok := log.ParseLevel(*logLevel)
		if !ok {
			fmt.Fprintf(stderr, "invalid --log-level %q\n", *logLevel)
			return ExitUsage
		}
		level, hasLevel = l, true
	}

	if *isApp {
		app, ok := registry.app(target)
		if !ok {
			fmt.Fprintf(stderr, "no app registered as %q\n", target)
			return ExitStartup
		}
		if err := app.Start(); err != nil {
			fmt.Fprintf(stderr, "failed to start app %q: %v\n", target, err)
			return ExitStartup
		}
		waitForSignal(stdout, target)
		app.Stop()
		return ExitOK
	}

	worker, ok := registry.worker(target)
	if !ok {
		fmt.Fprintf(stderr, "no worker registered as %q\n", target)
		return ExitStartup
	}
	if *concurrency > 0 {
		if err := worker.SetConcurrency(*concurrency); err != nil {
			fmt.Fprintf(stderr, "invalid --concurrency: %v\n", err)
			return ExitUsage
		}
	}
	if hasLevel {
		worker.SetLogLevel(level)
	}
	if err := worker.Start(); err != nil {
		fmt.Fprintf(stderr, "failed to start worker %q: %v\n", target, err)
		return ExitStartup
	}
	waitForSignal(stdout, target)
	worker.Stop()
	return ExitOK
}

func clearCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("clear", flag.ContinueOnError)
	fs.SetOutput(stderr)
	brokerURL := fs.String("redis-url", "redis://localhost:6379", "broker connection URL")
	if err := fs.Parse(args); err != nil {
		return ExitUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "usage: ltq clear [--redis-url URL] <queue>")
		return ExitUsage
	}
	queue := fs.Arg(0)

	broker, err := ltq.BrokerFromURL(*brokerURL)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return ExitStartup
	}
	defer broker.Close()

	if err := broker.Clear(queue); err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return ExitStartup
	}
	return ExitOK
}

func sizeCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("size", flag.ContinueOnError)
	fs.SetOutput(stderr)
	brokerURL := fs.String("redis-url", "redis://localhost:6379", "broker connection URL")
	if err := fs.Parse(args); err != nil {
		return ExitUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "usage: ltq size [--redis-url URL] <queue>")
		return ExitUsage
	}
	queue := fs.Arg(0)

	broker, err := ltq.BrokerFromURL(*brokerURL)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return ExitStartup
	}
	defer broker.Close()

	n, err := broker.Size(queue)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return ExitStartup
	}
	fmt.Fprintln(stdout, n)
	return ExitOK
}
