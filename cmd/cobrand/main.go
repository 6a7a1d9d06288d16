// Command cobrand is the command line client of the cobrand e-wallet
// platform. It signs users in, shows and tops up their wallet, issues and
// scans QR payment codes, manages KYC documents and serves a small wallet
// dashboard.
//
// Usage:
//
//	cobrand setup
//	cobrand login -email user@example.com -tenant T1
//	cobrand wallet -refresh
//	cobrand serve
//
// Settings come from cobrand.yaml, a .env file and COBRAND_* variables.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"go.uber.org/zap"

	"github.com/vadiminshakov/cobrand/config"
	"github.com/vadiminshakov/cobrand/internal"
	"github.com/vadiminshakov/cobrand/internal/setup"
	"github.com/vadiminshakov/cobrand/pkg/logger"
)

// app is what every command runs against.
type app struct {
	cfg    config.Config
	client *internal.Client
	logger *zap.Logger
}

type command struct {
	summary string
	// flags registers command flags and returns the runner.
	flags func(fs *flag.FlagSet) func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"login":        {"sign in and load the wallet", loginCmd},
	"logout":       {"forget the local session", logoutCmd},
	"register":     {"create a user account", registerCmd},
	"whoami":       {"show the signed-in user", whoamiCmd},
	"users":        {"list user accounts", usersCmd},
	"wallet":       {"show the cached wallet", walletCmd},
	"currencies":   {"list the tenant currencies", currenciesCmd},
	"topup":        {"top up the wallet by card", topUpCmd},
	"transfer":     {"send funds to another wallet", transferCmd},
	"transactions": {"list wallet transactions", transactionsCmd},
	"qr":           {"list, create or scan QR codes", qrCmd},
	"kyc":          {"manage onboarding documents", kycCmd},
	"serve":        {"run the wallet dashboard", serveCmd},
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	name, args := os.Args[1], os.Args[2:]

	if name == "setup" {
		fs := flag.NewFlagSet(name, flag.ExitOnError)
		path := fs.String("config", config.DefaultPath, "path to yaml config")
		_ = fs.Parse(args)
		if err := setup.RunTUI(*path); err != nil {
			fail(err)
		}
		return
	}

	cmd, ok := commands[name]
	if !ok {
		usage()
		os.Exit(2)
	}

	fs := flag.NewFlagSet(name, flag.ExitOnError)
	cfgFlags := config.RegisterFlags(fs)
	run := cmd.flags(fs)
	_ = fs.Parse(args)

	cfg, err := cfgFlags.Load()
	if err != nil {
		fail(err)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Dev:    cfg.Log.Dev,
		File:   cfg.Log.File,
		MaxAge: cfg.Log.MaxAge,
	})
	if err != nil {
		fail(err)
	}
	defer log.Sync()

	client, err := internal.NewClient(cfg, log)
	if err != nil {
		fail(err)
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, &app{cfg: cfg, client: client, logger: log}, fs.Args()); err != nil {
		stop()
		client.Close()
		fail(err)
	}
}

func usage() {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(os.Stderr, titleStyle.Render("cobrand")+" <command> [flags]")
	fmt.Fprintf(os.Stderr, "\n  %-14s %s\n", "setup", "write the configuration interactively")
	for _, name := range names {
		fmt.Fprintf(os.Stderr, "  %-14s %s\n", name, commands[name].summary)
	}
}
