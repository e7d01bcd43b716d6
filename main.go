package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cnosuke/imgcheck/checker"
	"github.com/cnosuke/imgcheck/checkpoint"
	"github.com/cnosuke/imgcheck/config"
	"github.com/cnosuke/imgcheck/input"
	"github.com/cnosuke/imgcheck/logger"
	"github.com/cnosuke/imgcheck/metrics"
	"github.com/cnosuke/imgcheck/report"
	"github.com/cnosuke/imgcheck/scan"
	"github.com/cnosuke/imgcheck/server"
	"github.com/cnosuke/imgcheck/types"
	"github.com/cockroachdb/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

var (
	Name     = "imgcheck"
	Version  = "0.0.1"
	Revision = "xxx"
)

func main() {
	app := &cli.App{
		Name:    Name,
		Usage:   "Check that image URLs from a CSV feed are still served",
		Version: fmt.Sprintf("%s (%s)", Version, Revision),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the configuration file",
				EnvVars: []string{"IMGCHECK_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			checkCommand(),
			resetCommand(),
			{
				Name:    "server",
				Aliases: []string{"s"},
				Usage:   "Start the MCP server on stdio",
				Action: func(c *cli.Context) error {
					cfg, err := setup(c)
					if err != nil {
						return err
					}
					defer logger.Sync()

					ctx, cancel := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
					defer cancel()
					return server.Run(ctx, cfg, Name, Version, Revision)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup loads the configuration and installs the logger.
func setup(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, errors.Wrap(err, "failed to load configuration file")
	}
	if c.IsSet("log") {
		cfg.Log.Path = c.String("log")
	}
	if c.IsSet("debug") {
		cfg.Log.Debug = c.Bool("debug")
	}
	if err := logger.InitLogger(cfg.Log.Debug, cfg.Log.Path); err != nil {
		return nil, errors.Wrap(err, "failed to initialize logger")
	}
	return cfg, nil
}

func inputFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Usage: "CSV feed to check", Required: true},
		&cli.StringFlag{Name: "url-column", Usage: "column holding the URL (auto-detected when empty)"},
		&cli.StringSliceFlag{Name: "id-column", Usage: "identifier column, repeatable (auto-detected when empty)"},
		&cli.StringFlag{Name: "json-path", Usage: "extract the URL from JSON stored in the URL column, e.g. entries.url"},
		&cli.StringFlag{Name: "checkpoint", Usage: "SQLite file keeping progress for resumable scans"},
	}
}

func checkCommand() *cli.Command {
	flags := append(inputFlags(),
		&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "CSV report path (stdout when empty)"},
		&cli.IntFlag{Name: "concurrency", Usage: "maximum simultaneous requests"},
		&cli.IntFlag{Name: "timeout", Usage: "per-request timeout in seconds"},
		&cli.StringFlag{Name: "method", Usage: "head or range"},
		&cli.StringFlag{Name: "strategy", Usage: "auto, streamed or chunked"},
		&cli.IntFlag{Name: "budget", Usage: "stop starting new checks after this many seconds"},
		&cli.StringFlag{Name: "metrics-addr", Usage: "serve Prometheus metrics on this address"},
		&cli.BoolFlag{Name: "only-problems", Usage: "write only results that are not ok"},
		&cli.StringFlag{Name: "log", Usage: "log file (stderr when empty)"},
		&cli.BoolFlag{Name: "debug", Usage: "debug logging"},
	)
	return &cli.Command{
		Name:    "check",
		Aliases: []string{"c"},
		Usage:   "Check every URL of a CSV feed and write a CSV report",
		Flags:   flags,
		Action:  runCheck,
	}
}

func resetCommand() *cli.Command {
	return &cli.Command{
		Name:  "reset",
		Usage: "Forget stored progress for a CSV feed",
		Flags: inputFlags(),
		Action: func(c *cli.Context) error {
			cfg, err := setup(c)
			if err != nil {
				return err
			}
			defer logger.Sync()

			path := cfg.Checkpoint.Path
			if c.IsSet("checkpoint") {
				path = c.String("checkpoint")
			}
			if path == "" {
				return errors.New("--checkpoint is required")
			}
			reqs, err := readInput(c)
			if err != nil {
				return err
			}
			store, err := checkpoint.Open(c.Context, path)
			if err != nil {
				return errors.Wrap(err, "failed to open checkpoint")
			}
			defer store.Close()

			if err := scan.New(nil, store).Reset(c.Context, reqs); err != nil {
				return errors.Wrap(err, "failed to reset checkpoint")
			}
			zap.S().Infow("checkpoint reset", "input", c.String("input"), "checkpoint", path)
			return nil
		},
	}
}

func applyFlags(c *cli.Context, cfg *config.Config) {
	if c.IsSet("concurrency") {
		cfg.Run.Concurrency = c.Int("concurrency")
	}
	if c.IsSet("timeout") {
		cfg.Check.Timeout = c.Int("timeout")
	}
	if c.IsSet("method") {
		cfg.Check.Method = c.String("method")
	}
	if c.IsSet("strategy") {
		cfg.Run.Strategy = c.String("strategy")
	}
	if c.IsSet("budget") {
		cfg.Run.BudgetSeconds = c.Int("budget")
	}
	if c.IsSet("checkpoint") {
		cfg.Checkpoint.Path = c.String("checkpoint")
	}
	if c.IsSet("metrics-addr") {
		cfg.Metrics.Addr = c.String("metrics-addr")
	}
}

func readInput(c *cli.Context) ([]types.CheckRequest, error) {
	f, err := os.Open(c.String("input"))
	if err != nil {
		return nil, errors.Wrap(err, "failed to open input")
	}
	defer f.Close()

	reqs, err := input.ReadCSV(f, input.Options{
		URLColumn: c.String("url-column"),
		IDColumns: c.StringSlice("id-column"),
		JSONPath:  c.String("json-path"),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to read input")
	}
	return reqs, nil
}

func runCheck(c *cli.Context) error {
	cfg, err := setup(c)
	if err != nil {
		return err
	}
	defer logger.Sync()

	applyFlags(c, cfg)
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}

	// Input problems are reported before any request is sent.
	reqs, err := readInput(c)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var observer checker.Observer
	if cfg.Metrics.Addr != "" {
		m := metrics.New()
		observer = m
		go func() {
			if err := m.Serve(ctx, cfg.Metrics.Addr); err != nil {
				zap.S().Errorw("metrics server stopped", "error", err)
			}
		}()
	}

	var store checkpoint.Store
	if cfg.Checkpoint.Path != "" {
		s, err := checkpoint.Open(ctx, cfg.Checkpoint.Path)
		if err != nil {
			return errors.Wrap(err, "failed to open checkpoint")
		}
		defer s.Close()
		store = s
	}

	scanner, err := scan.NewFromConfig(cfg, observer, store)
	if err != nil {
		return err
	}

	rep, runErr := scanner.Scan(ctx, reqs, checker.Hooks{
		OnProgress: func(completed, total, interesting int) {
			zap.S().Infow("progress", "completed", completed, "total", total, "problems", interesting)
		},
		OnAlert: func(r types.CheckResult) {
			zap.S().Warnw("problem found",
				"identifier", r.Identifier,
				"status", r.Status,
				"code", r.Code,
				"url", r.URL,
				"reason", r.Reason)
		},
	})
	if rep == nil {
		return runErr
	}

	results := rep.Results
	if c.Bool("only-problems") {
		results = results[:0:0]
		for _, r := range rep.Results {
			if !r.OK() {
				results = append(results, r)
			}
		}
	}
	if err := writeReport(c.String("output"), results); err != nil {
		return err
	}

	zap.S().Infow("report written",
		"output", c.String("output"),
		"summary", report.Summary(rep),
		"complete", rep.Complete,
		"next_index", rep.NextIndex)
	if !rep.Complete && runErr == nil {
		zap.S().Warnw("run stopped before every URL was checked; rerun with the same --checkpoint to continue",
			"next_index", rep.NextIndex,
			"total", rep.Total)
	}
	return runErr
}

func writeReport(path string, results []types.CheckResult) error {
	if path == "" {
		return report.WriteCSV(os.Stdout, results)
	}
	return report.WriteFile(path, results)
}
