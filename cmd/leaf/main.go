package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/crimson-sun/leaf/internal/agent"
	"github.com/crimson-sun/leaf/internal/config"
	"github.com/crimson-sun/leaf/internal/logging"
	"github.com/crimson-sun/leaf/internal/provider"

	// Register export providers.
	_ "github.com/crimson-sun/leaf/internal/provider/logfile"
)

var version = "dev"

func main() {
	run(os.Args[1:], os.Stdout, os.Stderr, os.Exit)
}

// run parses args and drives the agent. Every path ends in a call to exit.
func run(args []string, stdout, stderr io.Writer, exit func(int)) {
	ambient := config.LoadAmbient()

	var (
		logLevel     string
		logFormat    string
		providerName string
		dryRun       bool
		showVersion  bool
	)
	flagSet := pflag.NewFlagSet("leaf", pflag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.StringVar(&logLevel, "log-level", ambient.LogLevel, "log level: debug, info, warn, error")
	flagSet.StringVar(&logFormat, "log-format", ambient.LogFormat, "log format: text or json")
	flagSet.StringVar(&providerName, "provider", "logfile", "export provider")
	flagSet.BoolVar(&dryRun, "dry-run", false, "print rendered lines to stdout instead of forwarding them")
	flagSet.BoolVar(&showVersion, "version", false, "print version and exit")

	if err := flagSet.Parse(args); err != nil {
		if err != pflag.ErrHelp {
			fmt.Fprintf(stdout, "leaf: %v\n", err)
		}
		printUsage(stdout, flagSet)
		exit(agent.ExitFailure)
		return
	}
	if showVersion {
		fmt.Fprintf(stdout, "leaf %s\n", version)
		exit(agent.ExitOK)
		return
	}
	if flagSet.NArg() != 1 {
		printUsage(stdout, flagSet)
		exit(agent.ExitFailure)
		return
	}

	level := logging.ParseLevel(logLevel)
	logger := logging.Init(stdout, logFormat, level)
	opts := []agent.Option{
		agent.WithExit(exit),
		agent.WithTimeouts(ambient.DialTimeout, ambient.WriteTimeout),
	}
	if dryRun {
		// Rendered lines own stdout; diagnostics move to stderr.
		logger = logging.Init(stderr, "json", level)
		opts = append(opts, agent.WithDryRun(stdout))
	}
	opts = append(opts, agent.WithLogger(logger))

	ctor, err := provider.Get(providerName)
	if err != nil {
		logger.Error("startup failed", "error", err, "providers", provider.Providers())
		exit(agent.ExitFailure)
		return
	}

	logger.Info("leaf starting", "version", version, "provider", providerName, "config", flagSet.Arg(0))
	agent.New(ctor(), opts...).Run(context.Background(), flagSet.Arg(0))
}

func printUsage(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(w, `Usage: leaf [flags] <config_file>

Forwards LEA records from an export session to a collector over TCP.

Flags:
%s`, flagSet.FlagUsages())
}
