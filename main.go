package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	apiservice "ridemarket/cmd/api_service"
	"ridemarket/cmd/seed"
	"ridemarket/internal/cli"
	"ridemarket/internal/general/config"
)

func main() {
	if len(os.Args) == 2 && (os.Args[1] == "--help" || os.Args[1] == "-h") {
		cli.PrintUsage(os.Stdout)
		os.Exit(0)
	}

	mode, modeArgs, err := cli.ParseMode(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		cli.PrintUsage(os.Stderr)
		os.Exit(2)
	}

	// cancelled on SIGINT/SIGTERM for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch mode {
	case cli.ModeAPI:
		fs := pflag.NewFlagSet(cli.ModeAPI, pflag.ContinueOnError)
		maxConc := fs.Int("max-concurrent", 100, "Maximum number of concurrent HTTP requests and sockets")
		configPath := fs.String("config", config.PathFromEnv(), "Path to the YAML configuration")
		cli.AttachUsage(fs, cli.ModeAPI)
		parse(fs, modeArgs)

		if *maxConc < 1 {
			fmt.Fprintln(os.Stderr, "Error: --max-concurrent must be >= 1")
			fs.Usage()
			os.Exit(2)
		}
		if err := apiservice.Run(ctx, *maxConc, *configPath); err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(1)
		}

	case cli.ModeSeed:
		fs := pflag.NewFlagSet(cli.ModeSeed, pflag.ContinueOnError)
		configPath := fs.String("config", config.PathFromEnv(), "Path to the YAML configuration")
		superID := fs.String("super-operator", "", "User id to grant ADMIN (overrides bootstrap.super_operator_id)")
		cli.AttachUsage(fs, cli.ModeSeed)
		parse(fs, modeArgs)

		if err := seed.Run(ctx, *configPath, *superID); err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(1)
		}

	case cli.ModeToken:
		fs := pflag.NewFlagSet(cli.ModeToken, pflag.ContinueOnError)
		userID := fs.String("user", "", "User id (token subject)")
		role := fs.String("role", "CLIENT", "Role: CLIENT | DRIVER | MODERATOR | ADMIN")
		ttl := fs.Duration("ttl", 2*time.Hour, "Token lifetime")
		secret := fs.String("secret", os.Getenv("RIDEMARKET_JWT_SECRET"), "HMAC secret (defaults to jwt.secret_key from --config)")
		configPath := fs.String("config", config.PathFromEnv(), "Path to the YAML configuration")
		cli.AttachUsage(fs, cli.ModeToken)
		parse(fs, modeArgs)

		if *secret == "" {
			cfg, err := config.LoadFromFile(*configPath)
			if err != nil {
				fmt.Fprintln(os.Stderr, "Error: no --secret and", err)
				os.Exit(2)
			}
			*secret = cfg.JWT.SecretKey
		}
		token, claims, err := cli.GenerateUserToken(*secret, *ttl, *userID, *role)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(1)
		}
		fmt.Println(token)
		fmt.Fprintf(os.Stderr, "sub=%s role=%s exp=%s\n", claims.Subject, claims.Role, claims.ExpiresAt.Time.UTC().Format(time.RFC3339))

	default:
		fmt.Fprintln(os.Stderr, "Error: unknown mode")
		os.Exit(2)
	}
}

// parse exits on --help or a bad flag.
func parse(fs *pflag.FlagSet, args []string) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(2)
	}
}
