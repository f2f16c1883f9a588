package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"fdtune/internal/bootscript"
	"fdtune/internal/config"
	"fdtune/internal/detector"
	terr "fdtune/internal/errors"
	"fdtune/internal/metrics"
	"fdtune/internal/persist"
	"fdtune/internal/policy"
	"fdtune/internal/sysctlconf"
	"fdtune/internal/sysinfo"
	"fdtune/internal/traffic"
)

// Options are the per-run choices made on the command line.
type Options struct {
	RunID     string
	DryRun    bool
	Interface string
	Pacing    bool
	// PacingRateMbit overrides the rate derived from the link speed when positive.
	PacingRateMbit int64
	NoTxQueueLen   bool
	NoRing         bool
	ApplyNow       bool
	NoReload       bool
	TextfilePath   string
}

// Tuner coordinates discovery, recommendation and the file edits.
type Tuner struct {
	cfg           config.Config
	logger        *slog.Logger
	env           detector.Environment
	discoverer    InterfaceDiscoverer
	applier       CommandApplier
	reloader      SysctlReloader
	writer        FileWriter
	kernelRelease func() (string, error)
	now           func() time.Time
}

// NewTuner constructs a Tuner from deps.
func NewTuner(deps Dependencies) *Tuner {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.KernelRelease == nil {
		deps.KernelRelease = sysinfo.KernelRelease
	}
	return &Tuner{
		cfg:           deps.Config,
		logger:        deps.Logger,
		env:           deps.Environment,
		discoverer:    deps.Discoverer,
		applier:       deps.Applier,
		reloader:      deps.Reloader,
		writer:        deps.Writer,
		kernelRelease: deps.KernelRelease,
		now:           deps.Now,
	}
}

// Run performs one tuning pass. Boot script conflicts are reported in the
// summary, not as errors.
func (t *Tuner) Run(ctx context.Context, opts Options) (summary Summary, err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			err = fmt.Errorf("tuner panic: %v", r)
			t.logger.Error("tuner panic recovered",
				slog.Any("panic", r),
				slog.String("stack", string(stack)))
		}
	}()

	if ctx == nil {
		return summary, errors.New("context must not be nil")
	}

	summary.RunID = opts.RunID
	summary.DryRun = opts.DryRun
	stamp := sysctlconf.Stamp{Tool: t.cfg.Tool, Time: t.now()}

	kernel, kerr := t.kernelRelease()
	if kerr != nil {
		t.warn(&summary, "kernel release unknown", kerr)
	}
	summary.Kernel = kernel
	fqKernel := kernel == "" || sysinfo.KernelAtLeast(kernel, policy.MinFQKernel)

	reload := t.cfg.ReloadSysctl && !opts.NoReload
	if err := detector.Check(ctx, t.logger, t.env, detector.Requirements{
		DryRun: opts.DryRun,
		Pacing: opts.Pacing && fqKernel,
		Reload: reload,
		Ring:   !opts.NoRing,
	}); err != nil {
		return summary, err
	}

	iface, maxMTU, err := t.selectInterface(ctx, opts)
	if err != nil {
		return summary, err
	}
	summary.Interface = iface
	summary.MTU = maxMTU

	osInfo, oerr := sysinfo.ReadOSRelease(t.cfg.OSReleasePath)
	if oerr != nil {
		t.warn(&summary, "operating system unknown", oerr)
	}
	summary.OS = osInfo

	rec, err := policy.Recommend(t.cfg.Tuning, policy.Input{
		SpeedBps:       iface.SpeedBps,
		MTU:            maxMTU,
		OS:             osInfo,
		KernelRelease:  kernel,
		Pacing:         opts.Pacing,
		PacingRateMbit: opts.PacingRateMbit,
	})
	if err != nil {
		return summary, terr.New(terr.CategoryCritical, err, terr.ErrorContext{
			Operation: "recommend",
			Interface: iface.Name,
		})
	}
	summary.Recommendation = rec
	t.logger.Info("recommendation computed",
		slog.String("interface", iface.Name),
		slog.String("tier", rec.Tier.Name),
		slog.Int("params", rec.Params.Len()),
		slog.Int("txqueuelen", rec.TxQueueLen),
		slog.Int64("pacing_mbit", rec.PacingRateMbit),
	)
	for _, note := range rec.Notes {
		t.logger.Info("policy note", slog.String("note", note))
	}

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	if err := t.tuneSysctl(ctx, &summary, rec, stamp, opts.DryRun, reload); err != nil {
		return summary, err
	}

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	commands := t.interfaceCommands(ctx, &summary, iface, rec, opts)
	if err := t.tuneBootScript(&summary, commands, stamp, opts.DryRun); err != nil {
		return summary, err
	}

	if opts.ApplyNow && !opts.DryRun {
		t.applyNow(ctx, &summary)
	}

	if opts.TextfilePath != "" {
		if err := metrics.WriteTextfile(opts.TextfilePath, snapshot(summary, stamp.Time)); err != nil {
			t.warn(&summary, "metrics textfile not written", err)
		}
	}

	t.logger.Info("tuning finished",
		slog.Bool("dry_run", opts.DryRun),
		slog.Int("added", len(summary.Sysctl.Added)),
		slog.Int("already_present", len(summary.Sysctl.AlreadyPresent)),
		slog.Int("conflicts", len(summary.Conflicts())),
	)
	return summary, nil
}

// selectInterface returns the interface to tune and the MTU used for the jumbo
// frame rule.
func (t *Tuner) selectInterface(ctx context.Context, opts Options) (traffic.Interface, int, error) {
	ifaces, err := t.discoverer.Interfaces(ctx)
	if err != nil {
		return traffic.Interface{}, 0, err
	}

	if opts.Interface != "" {
		iface, err := traffic.Lookup(ifaces, opts.Interface)
		if err != nil {
			return traffic.Interface{}, 0, terr.Precondition("select_interface", err.Error(), terr.ErrorContext{Interface: opts.Interface})
		}
		if !iface.SpeedKnown() {
			t.logger.Warn("link speed unknown; speed-based tuning skipped", slog.String("interface", iface.Name))
		}
		return iface, iface.MTU, nil
	}

	iface, ok := traffic.Fastest(ifaces)
	if !ok {
		names := make([]string, 0, len(ifaces))
		for _, i := range ifaces {
			names = append(names, i.Name)
		}
		return traffic.Interface{}, 0, terr.Precondition("select_interface",
			"no interface reports a link speed; choose one with --interface",
			terr.ErrorContext{Extra: map[string]any{"discovered": names}})
	}

	maxMTU := 0
	for _, i := range ifaces {
		if i.MTU > maxMTU {
			maxMTU = i.MTU
		}
	}
	t.logger.Info("interface selected",
		slog.String("interface", iface.Name),
		slog.Int64("speed_mbit", iface.SpeedMbit()),
		slog.Int("max_mtu", maxMTU),
	)
	return iface, maxMTU, nil
}

func (t *Tuner) tuneSysctl(ctx context.Context, summary *Summary, rec policy.Recommendation, stamp sysctlconf.Stamp, dryRun, reload bool) error {
	path := t.cfg.SysctlPath
	doc, err := persist.Read(path)
	if err != nil {
		return terr.New(terr.CategoryCritical, err, terr.ErrorContext{Operation: "read_sysctl", Path: path})
	}

	merged, result, err := sysctlconf.Merge(doc.Content, rec.Params, stamp)
	if err != nil {
		return terr.New(terr.CategoryCritical, err, terr.ErrorContext{Operation: "merge_sysctl", Path: path})
	}
	summary.Sysctl = result
	summary.SysctlFile = FileChange{
		Path:    path,
		Existed: doc.Exists,
		Changed: merged != doc.Content,
		Content: merged,
	}

	for _, s := range result.Superseded {
		t.logger.Info("sysctl line superseded",
			slog.String("key", s.Key),
			slog.Int("line", s.Line),
			slog.String("reason", s.Reason),
			slog.String("original", s.Original),
		)
	}

	if dryRun {
		t.logger.Info("dry run: sysctl configuration not written", slog.String("path", path))
		return nil
	}

	if summary.SysctlFile.Changed {
		backup, err := t.writer.Write(doc, merged, persist.ConfigMode)
		summary.SysctlFile.Backup = backup
		if err != nil {
			return terr.New(terr.CategoryCritical, err, terr.ErrorContext{Operation: "write_sysctl", Path: path})
		}
		t.logger.Info("sysctl configuration updated",
			slog.String("path", path),
			slog.String("backup", backup),
			slog.Int("added", len(result.Added)),
			slog.Int("replaced", len(result.Replaced)),
		)
	} else {
		t.logger.Info("sysctl configuration already up to date", slog.String("path", path))
	}

	if !reload {
		return nil
	}
	res, err := t.reloader.Reload(ctx, path)
	summary.Reload = res
	if err != nil {
		return terr.New(terr.CategoryCritical, err, terr.ErrorContext{Operation: "reload_sysctl", Path: path, Command: "sysctl -p"})
	}
	summary.Reloaded = true
	return nil
}

// interfaceCommands lists the interface settings to persist, in application order.
func (t *Tuner) interfaceCommands(ctx context.Context, summary *Summary, iface traffic.Interface, rec policy.Recommendation, opts Options) []traffic.Command {
	var commands []traffic.Command

	if rec.TxQueueLen > 0 && !opts.NoTxQueueLen {
		commands = append(commands, traffic.TxQueueDirective(iface.Name, rec.TxQueueLen))
	}

	switch {
	case opts.NoRing:
	case iface.Virtual:
		t.logger.Info("ring buffers of virtual interfaces are left to the hypervisor", slog.String("interface", iface.Name))
	default:
		ring, err := t.discoverer.Ring(ctx, iface.Name)
		if err != nil {
			t.warn(summary, "ring buffer sizes unavailable", err)
			break
		}
		if rx, tx := ring.Targets(); rx > 0 || tx > 0 {
			commands = append(commands, traffic.RingDirective(iface.Name, rx, tx))
		} else {
			t.logger.Info("ring buffers already at hardware maximum", slog.String("interface", iface.Name))
		}
	}

	if rec.Pacing {
		commands = append(commands, traffic.PacingDirective(iface.Name, rec.PacingRateMbit))
	} else if opts.Pacing {
		t.warn(summary, "pacing skipped", errors.New("fq qdisc unavailable on this kernel"))
	}
	return commands
}

// tuneBootScript appends each directive in turn, chaining the text in memory so a
// dry run previews exactly what a real run writes.
func (t *Tuner) tuneBootScript(summary *Summary, commands []traffic.Command, stamp sysctlconf.Stamp, dryRun bool) error {
	path := t.cfg.BootScriptPath
	summary.BootScript.Path = path
	if len(commands) == 0 {
		return nil
	}

	doc, err := persist.Read(path)
	if err != nil {
		return terr.New(terr.CategoryCritical, err, terr.ErrorContext{Operation: "read_boot_script", Path: path})
	}
	summary.BootScript.Existed = doc.Exists

	current := doc.Content
	synthesized := false
	for _, cmd := range commands {
		updated, outcome, err := bootscript.Append(current, cmd.Directive(), stamp)
		if err != nil {
			return terr.New(terr.CategoryCritical, err, terr.ErrorContext{
				Operation: "append_directive",
				Path:      path,
				Interface: cmd.Interface,
				Command:   cmd.Line(),
			})
		}
		current = updated
		synthesized = synthesized || outcome.Synthesized
		summary.Directives = append(summary.Directives, DirectiveResult{Command: cmd, Outcome: outcome})

		attrs := []any{
			slog.String("kind", cmd.Kind.String()),
			slog.String("outcome", outcome.Kind.String()),
			slog.Int("line", outcome.Line),
		}
		if outcome.Kind == bootscript.ConflictDetected {
			t.logger.Warn("boot script already configures this resource differently",
				append(attrs, slog.String("existing", outcome.Existing), slog.String("proposed", outcome.Proposed))...)
			continue
		}
		t.logger.Info("boot script directive reconciled", attrs...)
	}

	summary.BootScript.Content = current
	summary.BootScript.Changed = current != doc.Content
	if dryRun || !summary.BootScript.Changed {
		return nil
	}

	mode := persist.ScriptMode
	if doc.Exists && !synthesized {
		mode = doc.Mode
	}
	backup, err := t.writer.Write(doc, current, mode)
	summary.BootScript.Backup = backup
	if err != nil {
		return terr.New(terr.CategoryCritical, err, terr.ErrorContext{Operation: "write_boot_script", Path: path})
	}
	t.logger.Info("boot script updated", slog.String("path", path), slog.String("backup", backup))
	return nil
}

// applyNow applies every directive the boot script now carries. Failures are
// recoverable and reported as warnings.
func (t *Tuner) applyNow(ctx context.Context, summary *Summary) {
	var errs terr.MultiError
	for i := range summary.Directives {
		d := &summary.Directives[i]
		if d.Outcome.Kind == bootscript.ConflictDetected {
			continue
		}
		if err := t.applier.Apply(ctx, d.Command); err != nil {
			errs.Add(err)
			continue
		}
		d.Applied = true
	}
	if err := errs.ErrorOrNil(); err != nil {
		t.warn(summary, "some settings were not applied", err)
	}
}

func (t *Tuner) warn(summary *Summary, msg string, err error) {
	_, args := terr.LogArgs(err, terr.CategoryRecoverable)
	t.logger.Warn(msg, args...)
	summary.Warnings = append(summary.Warnings, fmt.Sprintf("%s: %v", msg, err))
}

func snapshot(s Summary, at time.Time) metrics.Snapshot {
	directives := make(map[string]string, len(s.Directives))
	for _, d := range s.Directives {
		directives[d.Command.Kind.String()] = d.Outcome.Kind.String()
	}
	return metrics.Snapshot{
		Interface:      s.Interface.Name,
		SpeedBps:       s.Interface.SpeedBps,
		MTU:            s.MTU,
		Added:          len(s.Sysctl.Added),
		AlreadyPresent: len(s.Sysctl.AlreadyPresent),
		Replaced:       len(s.Sysctl.Replaced),
		Superseded:     len(s.Sysctl.Superseded),
		Directives:     directives,
		DryRun:         s.DryRun,
		Time:           at,
	}
}
