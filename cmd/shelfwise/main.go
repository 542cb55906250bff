// Shelfwise - Book Rating Recommender
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

// Package main is the shelfwise command.
//
// Shelfwise trains a matrix factorization model on the Book-Crossing
// ratings, ranks unread books for every user and stores the top-N lists
// for the web application to display.
//
// # Commands
//
//	shelfwise run        one batch pass: load, clean, train, recommend, write (default)
//	shelfwise serve      supervised daemon: scheduled retraining and the read API
//	shelfwise evaluate   k-fold RMSE comparison of the candidate algorithms
//	shelfwise seed       load the CSV files into the DuckDB rating store
//
// Every command accepts -config to point at a YAML file; otherwise
// CONFIG_PATH, ./config.yaml and /etc/shelfwise/config.yaml are tried.
// Environment variables override the file (see internal/config).
//
// # Exit Status
//
// A failed batch run logs the failing stage (load, clean, index, train,
// recommend or sink) and exits with status 1. The previously written
// recommendations are left untouched.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/tomtom215/shelfwise/internal/config"
	"github.com/tomtom215/shelfwise/internal/logging"
	"github.com/tomtom215/shelfwise/internal/metrics"
	"github.com/tomtom215/shelfwise/internal/recommend"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// command is one subcommand.
type command struct {
	name    string
	summary string
	run     func(ctx context.Context, cfg *config.Config) error
}

var commands = []command{
	{name: "run", summary: "run one batch pass and write recommendations", run: runBatch},
	{name: "serve", summary: "serve the read API and retrain on a schedule", run: serve},
	{name: "evaluate", summary: "cross-validate the candidate algorithms", run: evaluate},
	{name: "seed", summary: "load the CSV files into the rating store", run: seed},
}

func main() {
	os.Exit(execute(os.Args[1:], os.Stderr))
}

// execute runs the command named in args and returns the exit status.
func execute(args []string, stderr io.Writer) int {
	cmd, rest, err := parseCommand(args)
	if err != nil {
		fmt.Fprintln(stderr, err)
		usage(stderr)
		return 2
	}

	fs := flag.NewFlagSet(cmd.name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to the YAML configuration file")
	if err := fs.Parse(rest); err != nil {
		return 2
	}
	if *configPath != "" {
		if err := os.Setenv(config.ConfigPathEnvVar, *configPath); err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
	}

	cfg, err := config.Load()
	if err != nil {
		logging.Error().Err(err).Msg("Failed to load configuration")
		return 1
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	metrics.AppInfo.WithLabelValues(version, runtime.Version()).Set(1)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info().Str("command", cmd.name).Str("version", version).Msg("Starting shelfwise")

	if err := cmd.run(ctx, cfg); err != nil {
		event := logging.Error().Err(err).Str("command", cmd.name)
		var stageErr *recommend.StageError
		if errors.As(err, &stageErr) {
			event = event.Str("stage", string(stageErr.Stage))
		}
		event.Msg("Command failed")
		return 1
	}
	return 0
}

// parseCommand picks the subcommand. Without one, or when the first
// argument is a flag, "run" is used.
func parseCommand(args []string) (command, []string, error) {
	if len(args) == 0 || (len(args[0]) > 0 && args[0][0] == '-') {
		return commands[0], args, nil
	}
	for _, c := range commands {
		if c.name == args[0] {
			return c, args[1:], nil
		}
	}
	return command{}, nil, fmt.Errorf("unknown command %q", args[0])
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: shelfwise <command> [-config path]")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-9s %s\n", c.name, c.summary)
	}
}
