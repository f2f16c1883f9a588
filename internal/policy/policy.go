// Package policy turns link properties and host facts into kernel parameter and
// interface recommendations.
package policy

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"fdtune/internal/config"
	"fdtune/internal/sysctlconf"
	"fdtune/internal/sysinfo"
)

const (
	keyRmemMax         = "net.core.rmem_max"
	keyWmemMax         = "net.core.wmem_max"
	keyTCPRmem         = "net.ipv4.tcp_rmem"
	keyTCPWmem         = "net.ipv4.tcp_wmem"
	keyDefaultQdisc    = "net.core.default_qdisc"
	keyMTUProbing      = "net.ipv4.tcp_mtu_probing"
	keyNetdevBacklog   = "net.core.netdev_max_backlog"
	centOSBacklog      = "250000"
	centOSBacklogSpeed = 10_000_000_000

	// MinFQKernel is the first kernel release shipping the fq qdisc.
	MinFQKernel = "3.12"
)

// Input captures what was discovered about the host.
type Input struct {
	// SpeedBps is the link speed of the tuned interface; zero when unknown.
	SpeedBps int64
	// MTU is zero when unknown.
	MTU           int
	OS            sysinfo.OSRelease
	KernelRelease string
	Pacing        bool
	// PacingRateMbit overrides the rate derived from the link speed when positive.
	PacingRateMbit int64
}

// Recommendation is the outcome of Recommend.
type Recommendation struct {
	Params *sysctlconf.ParameterSet
	Tier   config.Tier
	// TxQueueLen is zero when no transmit queue change is recommended.
	TxQueueLen     int
	Pacing         bool
	PacingRateMbit int64
	Notes          []string
}

// Recommend computes the parameters for in. It never mutates t.
func Recommend(t config.Tuning, in Input) (Recommendation, error) {
	if in.SpeedBps < 0 || in.MTU < 0 {
		return Recommendation{}, fmt.Errorf("negative link properties: speed=%d mtu=%d", in.SpeedBps, in.MTU)
	}

	tier, ok := selectTier(t, in.SpeedBps)
	if !ok {
		return Recommendation{}, fmt.Errorf("no tier covers link speed %d bps", in.SpeedBps)
	}

	rec := Recommendation{
		Params: sysctlconf.NewParameterSet(),
		Tier:   tier,
	}
	coreMax := strconv.FormatInt(clampBuffer(tier.CoreMax), 10)
	tcpMax := clampBuffer(tier.TCPMax)
	if tier.CoreMax > config.MaxKernelBuffer {
		rec.note("core buffer limit clamped to %d", config.MaxKernelBuffer)
	}

	rec.Params.Set(keyRmemMax, coreMax)
	rec.Params.Set(keyWmemMax, coreMax)
	rec.Params.Set(keyTCPRmem, fmt.Sprintf("%d %d %d", t.TCPMinBuffer, t.TCPReadDefault, tcpMax))
	rec.Params.Set(keyTCPWmem, fmt.Sprintf("%d %d %d", t.TCPMinBuffer, t.TCPWriteDefault, tcpMax))
	for _, key := range sortedKeys(t.Params) {
		rec.Params.Set(key, t.Params[key])
	}

	if in.MTU > 0 && in.MTU > t.JumboMTU {
		rec.Params.Set(keyMTUProbing, "1")
		rec.note("jumbo MTU %d enables tcp_mtu_probing", in.MTU)
	}

	if in.OS.Is("centos") && in.OS.MajorVersion() == 6 && in.SpeedBps >= centOSBacklogSpeed {
		rec.Params.Set(keyNetdevBacklog, centOSBacklog)
		rec.note("%s at >=10G raises netdev_max_backlog", in.OS)
	}

	fqAvailable := in.KernelRelease == "" || sysinfo.KernelAtLeast(in.KernelRelease, MinFQKernel)
	if !fqAvailable {
		rec.Params.Delete(keyDefaultQdisc)
		rec.note("kernel %s predates fq; default_qdisc and pacing skipped", in.KernelRelease)
	}

	for _, key := range sortedKeys(t.Extra) {
		rec.Params.Set(key, t.Extra[key])
	}

	if in.SpeedBps > 0 && float64(in.SpeedBps) >= t.TxQueueMinSpeedGbps*1e9 {
		rec.TxQueueLen = t.TxQueueLen
	}

	if in.Pacing && fqAvailable {
		rate, err := pacingRate(t, in)
		if err != nil {
			return Recommendation{}, err
		}
		rec.Pacing = true
		rec.PacingRateMbit = rate
	}

	return rec, nil
}

// selectTier returns the highest tier at or below speed. Unknown speeds use the
// lowest tier.
func selectTier(t config.Tuning, speedBps int64) (config.Tier, bool) {
	tiers := t.SortedTiers()
	if len(tiers) == 0 {
		return config.Tier{}, false
	}
	if speedBps <= 0 {
		lowest := tiers[len(tiers)-1]
		return lowest, lowest.MinSpeedGbps == 0
	}
	for _, tier := range tiers {
		if tier.MinSpeedBps() <= speedBps {
			return tier, true
		}
	}
	return config.Tier{}, false
}

func pacingRate(t config.Tuning, in Input) (int64, error) {
	if in.PacingRateMbit > 0 {
		return in.PacingRateMbit, nil
	}
	if in.SpeedBps <= 0 {
		return 0, fmt.Errorf("pacing rate needs a known link speed or an explicit rate")
	}
	rate := int64(math.Floor(float64(in.SpeedBps) / 1e6 * t.PacingFraction))
	if rate <= 0 {
		return 0, fmt.Errorf("pacing rate for %d bps rounds to zero", in.SpeedBps)
	}
	return rate, nil
}

func clampBuffer(size int64) int64 {
	if size > config.MaxKernelBuffer {
		return config.MaxKernelBuffer
	}
	return size
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (r *Recommendation) note(format string, args ...any) {
	r.Notes = append(r.Notes, fmt.Sprintf(format, args...))
}
