package detector

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"strings"

	"golang.org/x/sys/unix"

	terr "fdtune/internal/errors"
	"fdtune/internal/sysinfo"
)

// Requirements describes what the planned run will do.
type Requirements struct {
	DryRun bool
	Pacing bool
	Reload bool
	// Ring is set when ring buffer sizes will be read and tuned with ethtool.
	Ring bool
}

// Environment holds the host probes used by Check. Tests substitute them.
type Environment struct {
	GOOS          string
	Euid          func() int
	LookPath      func(string) (string, error)
	KernelRelease func() (string, error)
	// ModuleDir is the sysfs directory listing loaded modules.
	ModuleDir string
	// ModulesRoot holds per-kernel module trees with modules.builtin.
	ModulesRoot string
	// Probe performs a dry-run module load without changing the kernel.
	Probe func(ctx context.Context, module string) error
}

// HostEnvironment returns probes against the running system.
func HostEnvironment() Environment {
	return Environment{
		GOOS:          runtime.GOOS,
		Euid:          unix.Geteuid,
		LookPath:      exec.LookPath,
		KernelRelease: sysinfo.KernelRelease,
		ModuleDir:     "/sys/module",
		ModulesRoot:   "/lib/modules",
		Probe: func(ctx context.Context, module string) error {
			return exec.CommandContext(ctx, "modprobe", "-n", module).Run()
		},
	}
}

// requiredCommands lists the tools the run needs on PATH.
func requiredCommands(req Requirements) []string {
	var commands []string
	if req.Ring {
		commands = append(commands, "ethtool")
	}
	if req.Pacing {
		commands = append(commands, "tc")
	}
	if req.Reload && !req.DryRun {
		commands = append(commands, "sysctl")
	}
	return commands
}

// Check ensures the host can be tuned before anything is modified. It returns a
// critical precondition error naming every failed check.
func Check(ctx context.Context, logger *slog.Logger, env Environment, req Requirements) error {
	if logger != nil {
		logger.Info("precondition check started",
			slog.Bool("dry_run", req.DryRun),
			slog.Bool("pacing", req.Pacing),
			slog.Bool("ring", req.Ring),
		)
	}

	if env.GOOS != "linux" {
		return terr.Precondition("precondition_check", fmt.Sprintf("unsupported operating system %q", env.GOOS))
	}

	var issues []string

	if !req.DryRun && env.Euid != nil && env.Euid() != 0 {
		issues = append(issues, "must run as root (use --dry-run to preview)")
	}

	for _, cmd := range requiredCommands(req) {
		if _, err := env.LookPath(cmd); err != nil {
			issues = append(issues, fmt.Sprintf("missing command %q: %v", cmd, err))
		}
	}

	if req.Pacing {
		if err := ensureFQAvailable(ctx, env); err != nil {
			issues = append(issues, err.Error())
		}
	}

	if len(issues) > 0 {
		description := strings.Join(issues, "; ")
		if logger != nil {
			logger.Error("precondition check failed", slog.String("issues", description))
		}
		return terr.Precondition("precondition_check", "host cannot be tuned", terr.ErrorContext{Actual: description})
	}

	if logger != nil {
		logger.Info("precondition check passed")
	}
	return nil
}
