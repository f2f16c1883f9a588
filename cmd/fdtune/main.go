package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"fdtune/internal/app"
	"fdtune/internal/config"
	terr "fdtune/internal/errors"
	"fdtune/internal/report"
)

func main() {
	ctx, cancel := signalContext()
	defer cancel()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		cancel()
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "fdtune",
		Usage: "tune kernel and NIC settings for high-throughput data transfer hosts",
		Description: "Discovers the fastest network interface, merges speed-scaled kernel parameters " +
			"into the sysctl configuration and installs interface settings into the boot script. " +
			"Existing settings are never removed: differing lines are commented out and conflicting " +
			"boot script commands are reported and left alone.",
		HideHelpCommand: true,
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "dry-run", Aliases: []string{"n"}, Usage: "show what would change without writing anything"},
			&cli.StringFlag{Name: "interface", Aliases: []string{"i"}, Usage: "tune `IFACE` instead of the fastest interface"},
			&cli.BoolFlag{Name: "pacing", Usage: "install an fq qdisc with maxrate pacing"},
			&cli.Int64Flag{Name: "pacing-rate", Usage: "pacing rate in `MBIT`/s (default: link speed x pacing-fraction)"},
			&cli.BoolFlag{Name: "no-txqueuelen", Usage: "do not install a transmit queue length setting"},
			&cli.BoolFlag{Name: "no-ring", Usage: "do not raise NIC ring buffers"},
			&cli.BoolFlag{Name: "apply-now", Usage: "also apply interface settings to the running system"},
			&cli.BoolFlag{Name: "no-reload", Usage: "do not run sysctl -p after writing"},
			&cli.BoolFlag{Name: "show-content", Usage: "in dry-run mode, print the full text that would be written"},
			&cli.StringFlag{Name: "textfile", Usage: "write node_exporter textfile metrics to `FILE`"},
			&cli.StringFlag{Name: "config", Value: config.DefaultConfigPath, Usage: "configuration `FILE`"},
			&cli.StringFlag{Name: "config-dir", Value: config.DefaultDropInDir, Usage: "drop-in configuration `DIR`"},
			&cli.StringFlag{Name: "log-level", Usage: "DEBUG, INFO, WARN or ERROR (default: from configuration)"},
			&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "only log errors and skip the summary"},
		},
		Action: run,
	}
}

func run(c *cli.Context) error {
	runID := uuid.NewString()
	quiet := c.Bool("quiet")

	source := config.ConfigSource{Path: c.String("config"), DropInDir: c.String("config-dir")}
	cfg, err := source.Read()
	if err != nil {
		logger := newLogger(os.Stderr, slog.LevelInfo, runID)
		logger.Error("failed to load configuration", slog.String("error", err.Error()))
		return err
	}

	level := cfg.LogLevel
	if raw := c.String("log-level"); raw != "" {
		if level, err = config.ParseLogLevel(raw); err != nil {
			newLogger(os.Stderr, slog.LevelInfo, runID).Error("invalid --log-level", slog.String("error", err.Error()))
			return err
		}
	}
	if quiet {
		level = slog.LevelError
	}
	logger := newLogger(os.Stderr, level, runID)

	opts := app.Options{
		RunID:          runID,
		DryRun:         c.Bool("dry-run"),
		Interface:      c.String("interface"),
		Pacing:         c.Bool("pacing") || c.IsSet("pacing-rate"),
		PacingRateMbit: c.Int64("pacing-rate"),
		NoTxQueueLen:   c.Bool("no-txqueuelen"),
		NoRing:         c.Bool("no-ring"),
		ApplyNow:       c.Bool("apply-now"),
		NoReload:       c.Bool("no-reload"),
		TextfilePath:   c.String("textfile"),
	}
	if c.IsSet("pacing-rate") && opts.PacingRateMbit <= 0 {
		err := fmt.Errorf("--pacing-rate must be positive, got %d", opts.PacingRateMbit)
		logger.Error("invalid arguments", slog.String("error", err.Error()))
		return err
	}

	tuner := app.NewTuner(app.HostDependencies(cfg, logger))
	summary, err := tuner.Run(c.Context, opts)
	if err != nil {
		category, args := terr.LogArgs(err, terr.CategoryCritical)
		logger.Error("tuning failed", append(args, slog.String("severity", category.String()))...)
		return err
	}

	for _, conflict := range summary.Conflicts() {
		logger.Warn("boot script conflict left unresolved",
			slog.String("kind", conflict.Command.Kind.String()),
			slog.String("existing", conflict.Outcome.Existing),
			slog.String("proposed", conflict.Outcome.Proposed))
	}

	if quiet {
		return nil
	}
	return report.Render(c.App.Writer, summary, report.Options{ShowContent: c.Bool("show-content")})
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	go func() {
		defer signal.Stop(signals)
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		cancel()
		time.Sleep(50 * time.Millisecond)
	}
}
