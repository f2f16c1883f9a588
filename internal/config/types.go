package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	units "github.com/docker/go-units"
)

// Config is the resolved fdtune configuration.
type Config struct {
	SysctlPath     string
	BootScriptPath string
	OSReleasePath  string
	SysfsNetDir    string
	Tool           string
	LogLevel       slog.Level
	ReloadSysctl   bool
	Tuning         Tuning
}

// Tuning is the immutable policy table handed to the recommendation engine.
type Tuning struct {
	JumboMTU            int
	TxQueueLen          int
	TxQueueMinSpeedGbps float64
	PacingFraction      float64
	TCPMinBuffer        int64
	TCPReadDefault      int64
	TCPWriteDefault     int64
	// Params are always recommended; Extra is applied after everything else.
	Params map[string]string
	Extra  map[string]string
	Tiers  []Tier
}

// Tier scales socket buffer limits for links at or above MinSpeedGbps.
type Tier struct {
	Name         string
	MinSpeedGbps float64
	// CoreMax feeds net.core.rmem_max and net.core.wmem_max.
	CoreMax int64
	// TCPMax is the upper bound of net.ipv4.tcp_rmem and net.ipv4.tcp_wmem.
	TCPMax int64
}

// MinSpeedBps converts the tier threshold to bits per second.
func (t Tier) MinSpeedBps() int64 {
	return int64(t.MinSpeedGbps * 1e9)
}

func (t Tier) String() string {
	return fmt.Sprintf("%s(>=%gG core=%s tcp=%s)", t.Name, t.MinSpeedGbps,
		units.BytesSize(float64(t.CoreMax)), units.BytesSize(float64(t.TCPMax)))
}

// SortedTiers returns the tiers ordered from the highest threshold down.
func (t Tuning) SortedTiers() []Tier {
	tiers := make([]Tier, len(t.Tiers))
	copy(tiers, t.Tiers)
	sort.SliceStable(tiers, func(i, j int) bool { return tiers[i].MinSpeedGbps > tiers[j].MinSpeedGbps })
	return tiers
}

// ParseLogLevel maps DEBUG, INFO, WARN and ERROR (any case) to slog levels.
func ParseLogLevel(value string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", value)
	}
}

// ParseSize accepts human sizes such as "64MiB" or plain byte counts.
func ParseSize(value string) (int64, error) {
	size, err := units.RAMInBytes(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("parse size %q: %w", value, err)
	}
	if size <= 0 {
		return 0, fmt.Errorf("size %q must be positive", value)
	}
	return size, nil
}

// Validate performs boundary checks and returns the first error encountered.
func (c Config) Validate() error {
	paths := map[string]string{
		"sysctl-path":      c.SysctlPath,
		"boot-script-path": c.BootScriptPath,
		"os-release-path":  c.OSReleasePath,
		"sysfs-net-dir":    c.SysfsNetDir,
	}
	for name, path := range paths {
		if path == "" || !filepath.IsAbs(path) {
			return fmt.Errorf("%s must be an absolute path, got %q", name, path)
		}
	}
	if strings.TrimSpace(c.Tool) == "" || strings.ContainsAny(c.Tool, " \t\r\n/") {
		return fmt.Errorf("tool must be a single word, got %q", c.Tool)
	}
	return c.Tuning.Validate()
}

// Validate checks the tuning table.
func (t Tuning) Validate() error {
	if t.JumboMTU < MinMTU || t.JumboMTU > MaxMTU {
		return fmt.Errorf("tuning.jumbo-mtu %d out of range [%d, %d]", t.JumboMTU, MinMTU, MaxMTU)
	}
	if t.TxQueueLen < MinQueueLen || t.TxQueueLen > MaxQueueLen {
		return fmt.Errorf("tuning.txqueuelen %d out of range [%d, %d]", t.TxQueueLen, MinQueueLen, MaxQueueLen)
	}
	if t.TxQueueMinSpeedGbps < 0 {
		return fmt.Errorf("tuning.txqueuelen-min-speed-gbps must not be negative")
	}
	if t.PacingFraction <= 0 || t.PacingFraction > 1 {
		return fmt.Errorf("tuning.pacing-fraction must be in (0, 1], got %g", t.PacingFraction)
	}
	if t.TCPMinBuffer <= 0 || t.TCPReadDefault <= 0 || t.TCPWriteDefault <= 0 {
		return fmt.Errorf("tuning tcp buffer defaults must be positive")
	}
	if len(t.Tiers) == 0 {
		return fmt.Errorf("tuning.tier must define at least one tier")
	}
	seen := make(map[string]struct{}, len(t.Tiers))
	hasDefault := false
	for _, tier := range t.Tiers {
		if tier.Name == "" {
			return fmt.Errorf("tuning.tier entries need a name")
		}
		if _, dup := seen[tier.Name]; dup {
			return fmt.Errorf("tuning.tier %q defined twice", tier.Name)
		}
		seen[tier.Name] = struct{}{}
		if tier.MinSpeedGbps < 0 {
			return fmt.Errorf("tuning.tier %q: min-speed-gbps must not be negative", tier.Name)
		}
		if tier.MinSpeedGbps == 0 {
			hasDefault = true
		}
		if tier.CoreMax <= 0 || tier.TCPMax <= 0 {
			return fmt.Errorf("tuning.tier %q: buffer sizes must be positive", tier.Name)
		}
		if tier.TCPMax < t.TCPReadDefault || tier.TCPMax < t.TCPWriteDefault {
			return fmt.Errorf("tuning.tier %q: tcp-max below the tcp defaults", tier.Name)
		}
	}
	if !hasDefault {
		return fmt.Errorf("tuning.tier needs a default tier with min-speed-gbps = 0")
	}
	for key := range t.Params {
		if !IsSysctlKey(key) {
			return fmt.Errorf("tuning.params: %q is not a sysctl key", key)
		}
	}
	for key := range t.Extra {
		if !IsSysctlKey(key) {
			return fmt.Errorf("tuning.extra: %q is not a sysctl key", key)
		}
	}
	return nil
}

// IsSysctlKey returns true when the key looks like a kernel parameter.
func IsSysctlKey(key string) bool {
	// Sysctl keys always use a dot-separated namespace (e.g. net.ipv4.tcp_sack).
	if !strings.Contains(key, ".") {
		return false
	}
	return !strings.ContainsAny(key, " \t=#;")
}
