package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	beaconservice "meditrack/cmd/beacon_service"
	emergencyservice "meditrack/cmd/emergency_service"
	notifierservice "meditrack/cmd/notifier_service"
	responderservice "meditrack/cmd/responder_service"
	"meditrack/internal/cli"
)

// runners maps each mode to its flag parsing and entrypoint.
var runners = map[string]func(ctx context.Context, args []string) error{
	cli.ModeEmergency: runEmergency,
	cli.ModeBeacon:    runBeacon,
	cli.ModeResponder: runResponder,
	cli.ModeNotifier:  runNotifier,
}

func main() {
	if len(os.Args) == 2 && (os.Args[1] == "--help" || os.Args[1] == "-h") {
		cli.PrintUsage(os.Stdout)
		os.Exit(0)
	}

	mode, svcArgs, err := cli.ParseMode(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		cli.PrintUsage(os.Stderr)
		os.Exit(2)
	}

	run, ok := runners[mode]
	if !ok {
		// ParseMode validates modes, so this is unreachable in practice
		fmt.Fprintln(os.Stderr, "Error: unknown mode")
		os.Exit(2)
	}

	// SIGINT/SIGTERM cancel the context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, svcArgs); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}

	// tiny delay to let deferred logs flush on very fast exits
	time.Sleep(10 * time.Millisecond)
}

// parseFlags runs fs over args, exiting on --help or parse errors.
func parseFlags(fs *flag.FlagSet, mode string, args []string) {
	cli.AttachUsage(fs, mode)
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(2)
	}
}

func runEmergency(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet(cli.ModeEmergency, flag.ContinueOnError)
	maxConc := fs.Int("max-concurrent", 100, "Maximum number of concurrent HTTP requests to process")
	parseFlags(fs, cli.ModeEmergency, args)

	if *maxConc < 1 {
		fmt.Fprintln(os.Stderr, "Error: --max-concurrent must be >= 1")
		fs.Usage()
		os.Exit(2)
	}
	return emergencyservice.Run(ctx, *maxConc)
}

func runBeacon(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet(cli.ModeBeacon, flag.ContinueOnError)
	parseFlags(fs, cli.ModeBeacon, args)
	return beaconservice.Run(ctx)
}

func runResponder(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet(cli.ModeResponder, flag.ContinueOnError)
	parseFlags(fs, cli.ModeResponder, args)
	return responderservice.Run(ctx)
}

func runNotifier(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet(cli.ModeNotifier, flag.ContinueOnError)
	prefetch := fs.Int("prefetch", 8, "RabbitMQ prefetch count for the notification consumer")
	parseFlags(fs, cli.ModeNotifier, args)

	if *prefetch <= 0 {
		fmt.Fprintln(os.Stderr, "Error: --prefetch must be > 0")
		fs.Usage()
		os.Exit(2)
	}
	return notifierservice.Run(ctx, *prefetch)
}
