// Command stowage drives the placement and retrieval engine from the shell.
// State persists between invocations in the configured storage backend.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "stowage: %v\n", err)
		}
		os.Exit(1)
	}
}

type command struct {
	summary string
	run     func(ctx context.Context, args []string, stdout io.Writer) error
}

var commands = map[string]command{
	"init":     {"Register containers and stow items from a YAML manifest", runInit},
	"place":    {"Stow a single item", runPlace},
	"retrieve": {"Plan and confirm the retrieval of an item", runRetrieve},
	"search":   {"Find the most accessible item by id or name", runSearch},
	"simulate": {"Advance the simulation clock", runSimulate},
	"reset":    {"Roll the registry back to the baseline", runReset},
	"waste":    {"List waste items", runWaste},
	"undock":   {"Plan a waste return or complete an undocking", runUndock},
	"export":   {"Write the arrangement CSV to blob storage", runExport},
	"state":    {"Print the registry as JSON", runState},
}

var commandOrder = []string{"init", "place", "retrieve", "search", "simulate", "reset", "waste", "undock", "export", "state"}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) < 1 {
		printUsage(stderr)
		return errors.New("missing command")
	}
	switch args[0] {
	case "version", "--version", "-version":
		fmt.Fprintf(stdout, "stowage version %s (built %s)\n", version, buildTime)
		return nil
	case "help", "-h", "--help":
		printUsage(stdout)
		return nil
	}
	cmd, ok := commands[args[0]]
	if !ok {
		printUsage(stderr)
		return fmt.Errorf("unknown command: %s", args[0])
	}
	return cmd.run(ctx, args[1:], stdout)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: stowage <command> [options]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, name := range commandOrder {
		fmt.Fprintf(w, "  %-10s %s\n", name, commands[name].summary)
	}
	fmt.Fprintln(w, "  version    Print version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run 'stowage <command> -h' for more information on a command.")
}
