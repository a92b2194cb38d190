// Command dexscan is the scanner entry point. It loads configuration,
// validates it, wires dependencies, sets up signal handling, and starts the
// application in the configured mode. The encrypt-secret subcommand prepares
// encrypted secret files for the chain.encrypted_rpc_path setting.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/quellen-dev/dexscan/internal/app"
	"github.com/quellen-dev/dexscan/internal/config"
	"github.com/quellen-dev/dexscan/internal/crypto"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "encrypt-secret" {
		os.Exit(runEncryptSecret(os.Args[2:]))
	}

	configPath := flag.String("config", "config.toml", "path to configuration file")
	modeFlag := flag.String("mode", "", "override the configured run mode (scan, once, discover, serve, full)")
	flag.Parse()

	// Setup structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	if *modeFlag != "" {
		cfg.Mode = *modeFlag
	}

	// Set log level from config.
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	// Validate configuration.
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("dexscan starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", *configPath),
	)

	application := app.New(cfg, logger)
	defer application.Close()

	// Setup signal handling for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		// context.Canceled is expected on clean shutdown.
		if errors.Is(err, context.Canceled) {
			logger.Info("shut down gracefully")
		} else {
			logger.Error("exited with error", slog.String("error", err.Error()))
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
	}

	logger.Info("dexscan stopped")
}

// runEncryptSecret encrypts a secret value (typically the RPC URL) into a
// file that chain.encrypted_rpc_path can point at. The secret is taken from
// the -secret flag or, when that is empty, read from stdin so the value never
// lands in shell history.
func runEncryptSecret(args []string) int {
	fs := flag.NewFlagSet("encrypt-secret", flag.ExitOnError)
	out := fs.String("out", "", "path to write the encrypted secret file")
	secret := fs.String("secret", "", "secret value; read from stdin when empty")
	password := fs.String("password", "", "encryption password; falls back to DEXSCAN_CHAIN_SECRET_PASSWORD")
	_ = fs.Parse(args)

	if *out == "" {
		fmt.Fprintln(os.Stderr, "encrypt-secret: -out is required")
		return 2
	}

	pw := *password
	if pw == "" {
		pw = os.Getenv("DEXSCAN_CHAIN_SECRET_PASSWORD")
	}
	if pw == "" {
		fmt.Fprintln(os.Stderr, "encrypt-secret: no password given (use -password or DEXSCAN_CHAIN_SECRET_PASSWORD)")
		return 2
	}

	value := *secret
	if value == "" {
		fmt.Fprint(os.Stderr, "secret: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			fmt.Fprintf(os.Stderr, "encrypt-secret: reading stdin: %v\n", err)
			return 1
		}
		value = strings.TrimSpace(line)
	}
	if value == "" {
		fmt.Fprintln(os.Stderr, "encrypt-secret: empty secret")
		return 2
	}

	if err := crypto.WriteSecretFile(*out, value, pw); err != nil {
		fmt.Fprintf(os.Stderr, "encrypt-secret: %v\n", err)
		return 1
	}
	fmt.Printf("encrypted secret written to %s\n", *out)
	return 0
}
