package traffic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"fdtune/internal/config"
	terr "fdtune/internal/errors"
)

var suppressRing = []string{
	"Operation not supported",
	"cannot modify an unsupported parameter",
}

type commandOpts struct {
	suppress []string
	quiet    bool
}

// Applier applies interface commands to the running system.
type Applier struct {
	logger   *slog.Logger
	netlink  NetlinkClient
	executor CommandExecutor
	timeout  time.Duration
}

// NewApplier returns an Applier. Nil dependencies fall back to the host implementations.
func NewApplier(logger *slog.Logger, netlinkClient NetlinkClient, executor CommandExecutor) *Applier {
	if logger == nil {
		logger = slog.Default()
	}
	if netlinkClient == nil {
		netlinkClient = DefaultNetlinkClient()
	}
	return &Applier{
		logger:   logger,
		netlink:  netlinkClient,
		executor: ensureExecutor(executor),
		timeout:  config.DefaultCommandTimeout,
	}
}

// Apply makes cmd take effect immediately.
func (a *Applier) Apply(ctx context.Context, cmd Command) error {
	var err error
	switch cmd.Kind {
	case CommandTxQueueLen:
		err = a.setTxQueueLen(cmd.Interface, cmd.TxQueueLen)
	case CommandRing:
		err = a.execCommand(ctx, cmd.Program, cmd.Args, commandOpts{suppress: suppressRing})
	case CommandPacing:
		err = a.execCommand(ctx, cmd.Program, cmd.Args, commandOpts{})
	default:
		err = fmt.Errorf("unsupported command kind %s", cmd.Kind)
	}
	if err != nil {
		return terr.WrapRecoverable(err, "apply_"+cmd.Kind.String(), terr.ErrorContext{
			Interface: cmd.Interface,
			Command:   cmd.Line(),
		})
	}
	a.logger.Info("applied interface setting",
		slog.String("interface", cmd.Interface),
		slog.String("kind", cmd.Kind.String()),
		slog.String("command", cmd.Line()),
	)
	return nil
}

func (a *Applier) setTxQueueLen(iface string, qlen int) error {
	if qlen < config.MinQueueLen || qlen > config.MaxQueueLen {
		return fmt.Errorf("txqueuelen %d out of range", qlen)
	}
	link, err := a.netlink.LinkByName(iface)
	if err != nil {
		return fmt.Errorf("lookup link %s: %w", iface, err)
	}
	if attrs := link.Attrs(); attrs != nil && attrs.TxQLen == qlen {
		return nil
	}
	if err := a.netlink.LinkSetTxQLen(link, qlen); err != nil {
		return fmt.Errorf("set txqueuelen on %s: %w", iface, err)
	}
	return nil
}

func (a *Applier) execCommand(ctx context.Context, name string, args []string, opts commandOpts) error {
	argStr := strings.Join(args, " ")

	runCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	output, err := a.executor.Run(runCtx, name, args)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}

		outStr := strings.TrimSpace(output)
		if len(opts.suppress) > 0 && (containsAny(outStr, opts.suppress) || containsAny(err.Error(), opts.suppress)) {
			a.logger.Debug("command not supported by device", slog.String("cmd", name), slog.String("args", argStr), slog.String("output", outStr))
			return nil
		}

		if outStr != "" {
			return fmt.Errorf("command %s %s: %w: %s", name, argStr, err, outStr)
		}
		return fmt.Errorf("command %s %s: %w", name, argStr, err)
	}

	if !opts.quiet && strings.TrimSpace(output) != "" {
		a.logger.Debug("command output", slog.String("cmd", name), slog.String("args", argStr), slog.String("output", output))
	}
	return nil
}

func containsAny(message string, substrings []string) bool {
	if message == "" || len(substrings) == 0 {
		return false
	}
	lower := strings.ToLower(message)
	for _, sub := range substrings {
		if sub == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}
