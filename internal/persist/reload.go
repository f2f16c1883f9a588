package persist

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

const cannotStat = "sysctl: cannot stat /proc/sys/"

// Runner executes an external command and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args []string) (string, error)
}

type processRunner struct{}

func (processRunner) Run(ctx context.Context, name string, args []string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output
	err := cmd.Run()
	return output.String(), err
}

// ReloadResult describes a sysctl reload.
type ReloadResult struct {
	Output string
	// Unknown lists keys the running kernel does not expose.
	Unknown []string
}

// Reloader loads a sysctl file into the running kernel.
type Reloader struct {
	logger  *slog.Logger
	runner  Runner
	timeout time.Duration
}

// NewReloader returns a Reloader. A nil runner executes sysctl on the host.
func NewReloader(logger *slog.Logger, runner Runner, timeout time.Duration) *Reloader {
	if logger == nil {
		logger = slog.Default()
	}
	if runner == nil {
		runner = processRunner{}
	}
	return &Reloader{logger: logger, runner: runner, timeout: timeout}
}

// Reload runs `sysctl -p path`. Keys missing from the running kernel are
// reported in the result rather than failing the reload.
func (r *Reloader) Reload(ctx context.Context, path string) (ReloadResult, error) {
	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	output, err := r.runner.Run(runCtx, "sysctl", []string{"-p", path})
	result := ReloadResult{Output: strings.TrimSpace(output), Unknown: unknownKeys(output)}
	if err != nil {
		if len(result.Unknown) > 0 && onlyCannotStat(output) {
			r.logger.Warn("sysctl reload completed with missing kernel parameters",
				slog.String("path", path),
				slog.Any("keys", result.Unknown))
			return result, nil
		}
		if result.Output != "" {
			return result, fmt.Errorf("sysctl -p %s failed: %w: %s", path, err, result.Output)
		}
		return result, fmt.Errorf("sysctl -p %s failed: %w", path, err)
	}

	if result.Output != "" {
		r.logger.Debug("sysctl -p output", slog.String("details", result.Output))
	}
	return result, nil
}

// unknownKeys extracts sysctl keys from "cannot stat" diagnostics.
func unknownKeys(output string) []string {
	var keys []string
	for _, ln := range strings.Split(output, "\n") {
		ln = strings.TrimSpace(ln)
		if !strings.HasPrefix(ln, cannotStat) {
			continue
		}
		rest := strings.TrimPrefix(ln, cannotStat)
		if idx := strings.Index(rest, ":"); idx >= 0 {
			rest = rest[:idx]
		}
		if rest != "" {
			keys = append(keys, strings.ReplaceAll(rest, "/", "."))
		}
	}
	return keys
}

// onlyCannotStat reports whether every error line is a missing-key diagnostic.
func onlyCannotStat(output string) bool {
	for _, ln := range strings.Split(output, "\n") {
		ln = strings.TrimSpace(ln)
		if strings.HasPrefix(ln, "sysctl:") && !strings.HasPrefix(ln, cannotStat) {
			return false
		}
	}
	return true
}
