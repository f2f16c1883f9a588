package app

import (
	"context"
	"log/slog"
	"os"
	"time"

	"fdtune/internal/config"
	"fdtune/internal/detector"
	"fdtune/internal/persist"
	"fdtune/internal/sysinfo"
	"fdtune/internal/traffic"
)

// InterfaceDiscoverer enumerates interfaces and reads ring buffer sizes.
type InterfaceDiscoverer interface {
	Interfaces(ctx context.Context) ([]traffic.Interface, error)
	Ring(ctx context.Context, iface string) (traffic.RingParams, error)
}

// CommandApplier applies interface settings to the running system.
type CommandApplier interface {
	Apply(ctx context.Context, cmd traffic.Command) error
}

// SysctlReloader loads a sysctl file into the running kernel.
type SysctlReloader interface {
	Reload(ctx context.Context, path string) (persist.ReloadResult, error)
}

// FileWriter durably replaces a document.
type FileWriter interface {
	Write(doc persist.Document, content string, mode os.FileMode) (string, error)
}

// Dependencies groups the services and host probes required by the tuner.
type Dependencies struct {
	Config        config.Config
	Logger        *slog.Logger
	Environment   detector.Environment
	Discoverer    InterfaceDiscoverer
	Applier       CommandApplier
	Reloader      SysctlReloader
	Writer        FileWriter
	KernelRelease func() (string, error)
	Now           func() time.Time
}

// HostDependencies wires the tuner to the running system.
func HostDependencies(cfg config.Config, logger *slog.Logger) Dependencies {
	executor := traffic.DefaultExecutor()
	netlinkClient := traffic.DefaultNetlinkClient()
	return Dependencies{
		Config:        cfg,
		Logger:        logger,
		Environment:   detector.HostEnvironment(),
		Discoverer:    traffic.NewDiscovererWithDependencies(logger, cfg.SysfsNetDir, netlinkClient, executor),
		Applier:       traffic.NewApplier(logger, netlinkClient, executor),
		Reloader:      persist.NewReloader(logger, executor, config.DefaultCommandTimeout),
		Writer:        persist.NewWriter(cfg.Tool),
		KernelRelease: sysinfo.KernelRelease,
		Now:           time.Now,
	}
}
