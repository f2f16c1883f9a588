package traffic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"path/filepath"
	"strings"
	"time"

	"github.com/vishvananda/netlink"

	"fdtune/internal/config"
	terr "fdtune/internal/errors"
	"fdtune/internal/sysinfo"
)

// ErrInterfaceNotFound reports an interface name that discovery did not yield.
var ErrInterfaceNotFound = errors.New("interface not found")

// Interface describes a network interface eligible for tuning.
type Interface struct {
	Name  string
	Index int
	// SpeedBps is the link speed in bits per second; zero when unknown.
	SpeedBps int64
	// MTU is zero when unknown.
	MTU        int
	TxQueueLen int
	Virtual    bool
}

// SpeedKnown reports whether the link speed was determined.
func (i Interface) SpeedKnown() bool {
	return i.SpeedBps > 0
}

// SpeedMbit returns the link speed in Mbit/s.
func (i Interface) SpeedMbit() int64 {
	return i.SpeedBps / 1_000_000
}

// SpeedGbps returns the link speed in Gbit/s.
func (i Interface) SpeedGbps() float64 {
	return float64(i.SpeedBps) / 1e9
}

func (i Interface) String() string {
	if !i.SpeedKnown() {
		return fmt.Sprintf("%s (speed unknown)", i.Name)
	}
	return fmt.Sprintf("%s (%d Mbit/s, mtu %d)", i.Name, i.SpeedMbit(), i.MTU)
}

// Discoverer enumerates interfaces and their link properties.
type Discoverer struct {
	logger         *slog.Logger
	netlink        NetlinkClient
	executor       CommandExecutor
	sysfsDir       string
	commandTimeout time.Duration
}

// NewDiscoverer returns a Discoverer backed by the host's netlink socket and processes.
func NewDiscoverer(logger *slog.Logger, sysfsDir string) *Discoverer {
	return NewDiscovererWithDependencies(logger, sysfsDir, DefaultNetlinkClient(), DefaultExecutor())
}

// NewDiscovererWithDependencies allows injecting netlink and command executors.
func NewDiscovererWithDependencies(logger *slog.Logger, sysfsDir string, netlinkClient NetlinkClient, executor CommandExecutor) *Discoverer {
	if logger == nil {
		logger = slog.Default()
	}
	if netlinkClient == nil {
		netlinkClient = DefaultNetlinkClient()
	}
	if sysfsDir == "" {
		sysfsDir = config.DefaultSysfsNetDir
	}
	return &Discoverer{
		logger:         logger,
		netlink:        netlinkClient,
		executor:       ensureExecutor(executor),
		sysfsDir:       sysfsDir,
		commandTimeout: config.DefaultCommandTimeout,
	}
}

// Interfaces lists tunable interfaces in kernel index order.
func (d *Discoverer) Interfaces(ctx context.Context) ([]Interface, error) {
	links, err := d.netlink.LinkList()
	if err != nil {
		return nil, terr.New(terr.CategoryCritical, fmt.Errorf("list links: %w", err), terr.ErrorContext{
			Operation: "discover_interfaces",
		})
	}

	var result []Interface
	for _, link := range links {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		attrs := link.Attrs()
		if attrs == nil || attrs.Name == "" {
			continue
		}
		if attrs.Flags&net.FlagLoopback != 0 || attrs.Name == "lo" {
			continue
		}
		if isSkippedInterface(attrs.Name) {
			d.logger.Debug("skipping software interface", slog.String("interface", attrs.Name))
			continue
		}
		if isBridge(link) {
			d.logger.Debug("skipping bridge interface", slog.String("interface", attrs.Name))
			continue
		}

		iface := Interface{
			Name:       attrs.Name,
			Index:      attrs.Index,
			MTU:        attrs.MTU,
			TxQueueLen: attrs.TxQLen,
			Virtual:    isVirtualHardware(d.sysfsDir, attrs.Name),
		}
		if iface.MTU <= 0 {
			iface.MTU = d.readSysfsInt(attrs.Name, "mtu")
		}
		iface.SpeedBps = d.linkSpeed(ctx, attrs.Name)

		d.logger.Debug("discovered interface",
			slog.String("interface", iface.Name),
			slog.Int64("speed_bps", iface.SpeedBps),
			slog.Int("mtu", iface.MTU),
			slog.Bool("virtual", iface.Virtual),
		)
		result = append(result, iface)
	}
	return result, nil
}

// Ring reads the ring buffer sizes of iface via `ethtool -g`.
func (d *Discoverer) Ring(ctx context.Context, iface string) (RingParams, error) {
	output, err := d.run(ctx, "ethtool", "-g", iface)
	if err != nil {
		return RingParams{}, terr.WrapRecoverable(fmt.Errorf("read ring parameters: %w", err), "read_ring", terr.ErrorContext{
			Interface: iface,
			Command:   "ethtool -g",
		})
	}
	params, ok := parseRingParams(output)
	if !ok {
		return RingParams{}, terr.WrapRecoverable(errors.New("ring parameters not reported"), "read_ring", terr.ErrorContext{
			Interface: iface,
			Command:   "ethtool -g",
		})
	}
	return params, nil
}

// linkSpeed returns bits per second, preferring sysfs over ethtool.
func (d *Discoverer) linkSpeed(ctx context.Context, name string) int64 {
	if mbit := d.readSysfsInt(name, "speed"); mbit > 0 {
		return int64(mbit) * 1_000_000
	}

	output, err := d.run(ctx, "ethtool", name)
	if err != nil && output == "" {
		d.logger.Debug("ethtool speed query failed", slog.String("interface", name), slog.String("error", err.Error()))
		return 0
	}
	if mbit, ok := parseEthtoolSpeed(output); ok {
		return mbit * 1_000_000
	}
	return 0
}

// readSysfsInt returns zero for missing, unreadable or negative attributes.
func (d *Discoverer) readSysfsInt(name, attr string) int {
	value, err := sysinfo.ReadInt(filepath.Join(d.sysfsDir, name, attr))
	if err != nil || value < 0 {
		return 0
	}
	return int(value)
}

func (d *Discoverer) run(ctx context.Context, name string, args ...string) (string, error) {
	runCtx, cancel := context.WithTimeout(ctx, d.commandTimeout)
	defer cancel()
	return d.executor.Run(runCtx, name, args)
}

func isBridge(link netlink.Link) bool {
	switch strings.ToLower(link.Type()) {
	case "bridge", "openvswitch", "vxlan", "macvlan", "ipvlan", "dummy":
		return true
	}
	return false
}

// Fastest returns the interface with the highest known speed. Ties go to the
// first one discovered. It returns false when no interface has a known speed.
func Fastest(ifaces []Interface) (Interface, bool) {
	var (
		best  Interface
		found bool
	)
	for _, iface := range ifaces {
		if !iface.SpeedKnown() {
			continue
		}
		if !found || iface.SpeedBps > best.SpeedBps {
			best = iface
			found = true
		}
	}
	return best, found
}

// Lookup finds an interface by name.
func Lookup(ifaces []Interface, name string) (Interface, error) {
	for _, iface := range ifaces {
		if iface.Name == name {
			return iface, nil
		}
	}
	return Interface{}, fmt.Errorf("%w: %s", ErrInterfaceNotFound, name)
}
