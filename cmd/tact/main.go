// Command tact discovers, runs, and reports on terminal-application
// tests (spec.md §1/§6).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/cboone/tact/internal/config"
	"github.com/cboone/tact/internal/loader"
	"github.com/cboone/tact/internal/orchestrator"
	"github.com/cboone/tact/internal/reporter"
	"github.com/cboone/tact/internal/worker"
)

var (
	updateSnapshot bool
	jsonOutput     bool
)

func main() {
	exitCode := 1 // configuration errors that never reach Run fall back to 1.
	cmd := rootCmd(&exitCode)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(exitCode)
}

// rootCmd builds the CLI; exitCode is written with the process's exit
// status (spec.md §6: "0 = all selected tests passed", ">0 = failure
// count", "1 reserved for configuration/global-timeout errors") once
// runTests has resolved one way or another.
func rootCmd(exitCode *int) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tact [filters...]",
		Short: "Run terminal-application tests against real PTYs",
		Long: `tact discovers test files whose tests are declared through a
Declarator's Test/Describe methods, runs each test in an isolated
worker process driving a real shell in a
pseudo-terminal, and resolves polling assertions against the emulated
screen.

Positional arguments are regular expressions matched against each
test's resolved file path; a test runs if it matches any of them (or if
none are given, every discovered test runs).`,
		Args:         cobra.ArbitraryArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(cmd.Context(), args, exitCode)
		},
	}
	cmd.Flags().BoolVar(&updateSnapshot, "update-snapshot", false, "write new snapshot baselines instead of comparing against them")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "emit NDJSON instead of the interactive console report")
	cmd.AddCommand(workerCmd())
	return cmd
}

// workerCmd is the hidden re-exec target every pool worker spawns
// (worker.WorkerSubcommand); it is never invoked directly by a user.
func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:    worker.WorkerSubcommand,
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return worker.RunLoop(cmd.Context())
		},
	}
}

func runTests(ctx context.Context, filters []string, exitCode *int) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("tact: %w", err)
	}

	cfg, err := config.Load(config.DefaultPath(cwd))
	if err != nil {
		return fmt.Errorf("tact: loading config: %w", err)
	}

	root, err := loader.Load(cfg, cwd)
	if err != nil {
		return fmt.Errorf("tact: discovering tests: %w", err)
	}

	binaryPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("tact: %w", err)
	}
	pool, err := worker.New(ctx, binaryPath, cfg.Workers)
	if err != nil {
		return fmt.Errorf("tact: starting workers: %w", err)
	}
	defer pool.Shutdown()

	var rep orchestrator.Reporter
	if jsonOutput {
		rep = reporter.NewNDJSON(os.Stdout)
	} else {
		rep = reporter.NewConsole(os.Stdout)
	}

	o := orchestrator.New(cfg, rep, pool, nil)
	failures, err := o.Run(ctx, root, orchestrator.ExecutionOptions{
		UpdateSnapshot: updateSnapshot,
		TestFilter:     filters,
	})
	if err != nil {
		*exitCode = 1
		return err
	}

	*exitCode = failures
	if failures > 0 {
		return fmt.Errorf("tact: %d test(s) did not match their expected outcome", failures)
	}
	return nil
}
