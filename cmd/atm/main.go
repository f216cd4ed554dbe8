package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/alovak/cardflow-atm/atm"
	"golang.org/x/exp/slog"
)

var defaults = atm.DefaultConfig()

var (
	flagData        = flag.String("data", getenv("ATM_DATA_FILE", defaults.DataFile), "flat file holding accounts (file backend)")
	flagBackend     = flag.String("backend", getenv("REPO_BACKEND", defaults.Backend), "account store backend: file|pg")
	flagDSN         = flag.String("dsn", getenv("DB_DSN", ""), "postgres DSN (pg backend)")
	flagTZ          = flag.String("tz", getenv("ATM_TZ", ""), "IANA timezone for transaction timestamps (default local)")
	flagBIN         = flag.String("bin", getenv("ATM_BIN_PREFIX", defaults.BINPrefix), "6/8/9-digit BIN for generated card numbers")
	flagMaxAccounts = flag.Int("max-accounts", getenvInt("ATM_MAX_ACCOUNTS", defaults.MaxAccounts), "maximum number of accounts")
	flagLogLevel    = flag.String("log-level", getenv("LOG_LEVEL", "warn"), "log level: debug|info|warn|error")
)

func main() {
	flag.Parse()

	logger := slog.New(slog.HandlerOptions{Level: parseLevel(*flagLogLevel)}.NewTextHandler(os.Stderr))

	cfg := atm.DefaultConfig()
	cfg.DataFile = *flagData
	cfg.Backend = strings.ToLower(strings.TrimSpace(*flagBackend))
	cfg.DSN = *flagDSN
	cfg.TimeZone = *flagTZ
	cfg.BINPrefix = *flagBIN
	cfg.MaxAccounts = *flagMaxAccounts

	app := atm.NewApp(logger, cfg)
	must(app.Start(context.Background()))

	// save unsaved changes before exiting on SIGINT/SIGTERM; Flush waits for
	// an operation in progress to finish
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		fmt.Println()
		app.Shutdown()
		os.Exit(0)
	}()

	err := app.NewSession(os.Stdin, os.Stdout).Run()
	app.Shutdown()
	if err != nil && !errors.Is(err, io.EOF) {
		os.Exit(1)
	}
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvInt(k string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(k)); err == nil {
		return v
	}
	return def
}

func must(err error) {
	if err != nil {
		fail("%v", err)
	}
}

func fail(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
