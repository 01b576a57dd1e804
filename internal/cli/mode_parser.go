package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/pflag"
)

const (
	ModeAPI   = "api-service"
	ModeSeed  = "seed"
	ModeToken = "token"
)

// isKnownMode maps a mode name or alias to its canonical name.
func isKnownMode(s string) (string, bool) {
	switch s {
	case ModeAPI, "api", "serve":
		return ModeAPI, true
	case ModeSeed, "bootstrap":
		return ModeSeed, true
	case ModeToken, "key":
		return ModeToken, true
	default:
		return "", false
	}
}

// ParseMode supports:
//
//	--mode=<value>
//	<value> (subcommand shorthand), e.g., `api-service --max-concurrent=150`
func ParseMode(args []string) (string, []string, error) {
	var mode string
	var out []string

	for _, arg := range args {
		if after, ok := strings.CutPrefix(arg, "--mode="); ok {
			mode = after
			continue
		}
		if mode == "" {
			if m, ok := isKnownMode(arg); ok {
				mode = m
				continue
			}
		}
		out = append(out, arg)
	}

	if mode == "" {
		return "", out, errors.New("no mode specified: use --mode=<mode>")
	}
	m, ok := isKnownMode(mode)
	if !ok {
		return "", out, fmt.Errorf("unknown mode %q", mode)
	}
	return m, out, nil
}

// PrintUsage prints the usage information with examples.
func PrintUsage(w io.Writer) {
	fmt.Fprintln(w, `Usage:
  ./ridemarket --mode=<mode> [flags]

Modes:
  api-service    HTTP API and websocket sessions
  seed           Store the default tariff and the super operator, then exit
  token          Mint a development access token

Examples:
  ./ridemarket --mode=api-service --max-concurrent=150 --config=config/config.yaml
  ./ridemarket --mode=seed --super-operator=ops-1
  ./ridemarket --mode=token --user=rider-1 --role=CLIENT`)
}

// AttachUsage wires a concise per-mode usage to a FlagSet.
func AttachUsage(fs *pflag.FlagSet, mode string) {
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: ./ridemarket --mode=%s [flags]\n", mode)
		fs.PrintDefaults()
	}
}
