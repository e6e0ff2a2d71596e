package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
)

const (
	ModeEmergency = "emergency-service"
	ModeBeacon    = "beacon-service"
	ModeResponder = "responder-service"
	ModeNotifier  = "notifier-service"
)

// aliases maps every accepted spelling to its canonical mode name.
var aliases = map[string]string{
	ModeEmergency: ModeEmergency, "emergency": ModeEmergency, "e": ModeEmergency,
	ModeBeacon: ModeBeacon, "beacon": ModeBeacon, "b": ModeBeacon,
	ModeResponder: ModeResponder, "responder": ModeResponder, "r": ModeResponder,
	ModeNotifier: ModeNotifier, "notifier": ModeNotifier, "n": ModeNotifier,
}

// ParseMode accepts either `--mode=<value>` or a bare subcommand (e.g.
// `beacon-service --config=...`) and returns the canonical mode plus the
// remaining args for that mode's flag set.
func ParseMode(args []string) (string, []string, error) {
	var mode string
	var rest []string

	for _, arg := range args {
		if after, ok := strings.CutPrefix(arg, "--mode="); ok {
			mode = after
			continue
		}
		if mode == "" {
			if canonical, ok := aliases[arg]; ok {
				mode = canonical
				continue
			}
		}
		rest = append(rest, arg)
	}

	if mode == "" {
		return "", rest, errors.New("no mode specified: use --mode=<service>")
	}
	if canonical, ok := aliases[mode]; ok {
		mode = canonical
	}
	return mode, rest, nil
}

// PrintUsage prints the usage information with examples.
func PrintUsage(w io.Writer) {
	fmt.Fprint(w, "\033[36m") // cyan

	fmt.Fprintln(w, `Usage:
  ./meditrack --mode=<service> [flags]

Services (modes):
  emergency-service            HTTP API, realtime relay, and durable emergency records
  beacon-service               Patient-side geolocation and one-touch emergency alerts
  responder-service            Responder dashboard fed by the realtime channel
  notifier-service             Email notifications for emergency status changes

Examples:
  ./meditrack --mode=emergency-service --max-concurrent=150
  ./meditrack --mode=beacon-service
  ./meditrack --mode=responder-service
  ./meditrack --mode=notifier-service --prefetch=8`)

	fmt.Fprint(w, "\033[0m") // reset
}

// AttachUsage wires a concise per-mode usage to a FlagSet.
func AttachUsage(fs *flag.FlagSet, mode string) {
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: ./meditrack --mode=%s [flags]\n", mode)
		fs.PrintDefaults()
	}
}
