// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/reportbot/lib/config"
	"github.com/bureau-foundation/reportbot/lib/delivery"
	"github.com/bureau-foundation/reportbot/lib/relay"
	"github.com/bureau-foundation/reportbot/lib/secret"
	"github.com/bureau-foundation/reportbot/lib/statefile"
	"github.com/bureau-foundation/reportbot/lib/synapsedb"
	"github.com/bureau-foundation/reportbot/lib/version"
	"github.com/bureau-foundation/reportbot/messaging"
)

const binaryName = "bureau-report-relay"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

type options struct {
	configPath  string
	logLevel    string
	once        bool
	check       bool
	showVersion bool
	help        bool
}

func parseOptions(args []string) (options, *pflag.FlagSet, error) {
	var opts options
	flagSet := pflag.NewFlagSet(binaryName, pflag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.StringVar(&opts.configPath, "config", "", "path to the YAML config file (default: $"+config.EnvironmentVariable+")")
	flagSet.StringVar(&opts.logLevel, "log-level", "info", "minimum log level: debug, info, warn, error")
	flagSet.BoolVar(&opts.once, "once", false, "run a single delivery cycle and exit")
	flagSet.BoolVar(&opts.check, "check", false, "check the configuration, database and homeserver, then exit")
	flagSet.BoolVar(&opts.showVersion, "version", false, "print version information and exit")
	flagSet.BoolVarP(&opts.help, "help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		return options{}, flagSet, err
	}
	if extra := flagSet.Args(); len(extra) > 0 {
		return options{}, flagSet, fmt.Errorf("unexpected argument: %s", extra[0])
	}
	if opts.once && opts.check {
		return options{}, flagSet, fmt.Errorf("--once and --check are mutually exclusive")
	}
	return opts, flagSet, nil
}

// newLogger returns a JSON logger at level and makes it the default.
func newLogger(level string, output io.Writer) (*slog.Logger, error) {
	var parsed slog.Level
	if err := parsed.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("--log-level: %w", err)
	}
	logger := slog.New(slog.NewJSONHandler(output, &slog.HandlerOptions{Level: parsed}))
	slog.SetDefault(logger)
	return logger, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	opts, flagSet, err := parseOptions(args)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(stdout, flagSet)
			return nil
		}
		return err
	}
	if opts.help {
		printHelp(stdout, flagSet)
		return nil
	}
	if opts.showVersion {
		version.Print(stdout, binaryName)
		return nil
	}

	logger, err := newLogger(opts.logLevel, stderr)
	if err != nil {
		return err
	}

	var cfg *config.Config
	if opts.configPath != "" {
		cfg, err = config.LoadFile(opts.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration:\n%w", err)
	}

	app, err := assemble(cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	switch {
	case opts.check:
		return app.check(ctx)
	case opts.once:
		// Like Run, a single cycle is not interrupted once started.
		err = app.relay.RunCycle(context.WithoutCancel(ctx))
	default:
		err = app.relay.Run(ctx)
	}
	if err != nil {
		logger.Error("relay stopped",
			"error", err,
			"homeserver", cfg.Matrix.Homeserver,
			"account", cfg.Matrix.Account,
			"state_file", cfg.Relay.StateFile,
		)
	}
	return err
}

// application is the assembled relay and what it must release.
type application struct {
	relay     *relay.Relay
	source    synapsedb.Source
	client    *messaging.Client
	tracker   *statefile.Tracker
	logger    *slog.Logger
	passwords []*secret.Buffer
}

func (a *application) Close() {
	for _, password := range a.passwords {
		password.Close()
	}
}

func assemble(cfg *config.Config, logger *slog.Logger) (*application, error) {
	app := &application{logger: logger}
	success := false
	defer func() {
		if !success {
			app.Close()
		}
	}()

	state, err := statefile.Load(cfg.Relay.StateFile)
	if err != nil {
		return nil, err
	}
	app.tracker = statefile.NewTracker(cfg.Relay.StateFile, state)

	switch cfg.Database.Driver {
	case config.DriverPostgres:
		password, err := cfg.DatabasePassword()
		if err != nil {
			return nil, err
		}
		if password != nil {
			app.passwords = append(app.passwords, password)
		}
		app.source, err = synapsedb.NewPostgresSource(synapsedb.PostgresConfig{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			Database: cfg.Database.Name,
			User:     cfg.Database.User,
			Password: password,
			SSLMode:  cfg.Database.SSLMode,
			View:     cfg.Database.View,
		}, logger)
		if err != nil {
			return nil, err
		}
	case config.DriverSQLite:
		app.source, err = synapsedb.NewSQLiteSource(cfg.Database.Path, cfg.Database.View, logger)
		if err != nil {
			return nil, err
		}
	}

	app.client, err = messaging.NewClient(messaging.ClientConfig{
		HomeserverURL:     cfg.Matrix.Homeserver,
		HTTPClient:        &http.Client{Timeout: cfg.HTTPTimeout()},
		DeviceDisplayName: cfg.Matrix.DeviceName,
		Retry:             messaging.RetryPolicy{MaxAttempts: cfg.Matrix.SendAttempts},
		Logger:            logger,
	})
	if err != nil {
		return nil, err
	}

	password, err := cfg.MatrixPassword()
	if err != nil {
		return nil, err
	}
	app.passwords = append(app.passwords, password)

	credentials := delivery.CredentialsFromState(state, app.client.HomeserverURL())
	logger.Info("starting",
		"version", version.Info(),
		"homeserver", app.client.HomeserverURL(),
		"room_id", cfg.Matrix.RoomID,
		"database", cfg.Database.Driver,
		"credentials", credentials.Kind.String(),
		"cursor", app.tracker.Cursor(),
	)

	deliverer, err := delivery.New(delivery.Config{
		Client:      app.client,
		Account:     cfg.Matrix.Account,
		Password:    password,
		RoomID:      cfg.RoomID(),
		Credentials: credentials,
		Store:       app.tracker,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}

	app.relay, err = relay.New(relay.Config{
		Source:          app.source,
		Deliverer:       deliverer,
		Cursor:          app.tracker,
		PollInterval:    cfg.PollInterval(),
		MalformedPolicy: relay.MalformedPolicy(cfg.Relay.MalformedPolicy),
		Logger:          logger,
	})
	if err != nil {
		return nil, err
	}

	success = true
	return app, nil
}

// check verifies that the database query runs, the homeserver answers,
// and a cached access token is still accepted. Nothing is sent.
func (a *application) check(ctx context.Context) error {
	var errs []error

	if err := synapsedb.Check(ctx, a.source); err != nil {
		errs = append(errs, fmt.Errorf("database: %w", err))
	} else {
		a.logger.Info("database reachable", "cursor", a.tracker.Cursor())
	}

	versions, err := a.client.ServerVersions(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("homeserver: %w", err))
	} else {
		a.logger.Info("homeserver reachable", "homeserver", a.client.HomeserverURL(), "versions", versions.Versions)
	}

	state := a.tracker.State()
	credentials := delivery.CredentialsFromState(&state, a.client.HomeserverURL())
	if credentials.Kind == delivery.CachedCredentials {
		session, err := a.client.SessionFromToken(credentials.UserID, credentials.DeviceID, credentials.AccessToken)
		if err != nil {
			errs = append(errs, err)
		} else {
			defer session.Close()
			whoami, err := session.WhoAmI(ctx)
			switch {
			case err != nil && messaging.IsMatrixError(err, messaging.ErrCodeUnknownToken):
				a.logger.Warn("cached access token rejected; the relay will log in again", "user_id", credentials.UserID)
			case err != nil:
				errs = append(errs, fmt.Errorf("whoami: %w", err))
			default:
				a.logger.Info("cached session valid", "user_id", whoami.UserID, "device_id", whoami.DeviceID)
			}
		}
	}

	return errors.Join(errs...)
}

func printHelp(output io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(output, `%s forwards Synapse event reports to a Matrix room.

Usage:
  %s [flags]

Flags:
%s`, binaryName, binaryName, strings.TrimRight(flagSet.FlagUsages(), "\n")+"\n")
}
