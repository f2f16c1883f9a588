package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fdtune/internal/config"
	"fdtune/internal/sysinfo"
)

func defaultTuning(t *testing.T) config.Tuning {
	t.Helper()
	cfg, err := config.Default()
	require.NoError(t, err)
	return cfg.Tuning
}

func get(t *testing.T, rec Recommendation, key string) string {
	t.Helper()
	value, ok := rec.Params.Get(key)
	require.Truef(t, ok, "missing %s", key)
	return value
}

func TestRecommendTiers(t *testing.T) {
	tuning := defaultTuning(t)

	cases := []struct {
		name    string
		speed   int64
		coreMax string
		tcpRmem string
		tcpWmem string
		txqlen  int
	}{
		{"unknown speed", 0, "67108864", "4096 87380 33554432", "4096 65536 33554432", 0},
		{"1G", 1_000_000_000, "67108864", "4096 87380 33554432", "4096 65536 33554432", 0},
		{"10G", 10_000_000_000, "268435456", "4096 87380 134217728", "4096 65536 134217728", 10000},
		{"25G", 25_000_000_000, "268435456", "4096 87380 134217728", "4096 65536 134217728", 10000},
		{"40G", 40_000_000_000, "536870912", "4096 87380 268435456", "4096 65536 268435456", 10000},
		{"100G", 100_000_000_000, "2147483647", "4096 87380 1073741824", "4096 65536 1073741824", 10000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, err := Recommend(tuning, Input{SpeedBps: tc.speed, MTU: 1500})
			require.NoError(t, err)
			assert.Equal(t, tc.coreMax, get(t, rec, "net.core.rmem_max"))
			assert.Equal(t, tc.coreMax, get(t, rec, "net.core.wmem_max"))
			assert.Equal(t, tc.tcpRmem, get(t, rec, "net.ipv4.tcp_rmem"))
			assert.Equal(t, tc.tcpWmem, get(t, rec, "net.ipv4.tcp_wmem"))
			assert.Equal(t, "1", get(t, rec, "net.ipv4.tcp_no_metrics_save"))
			assert.Equal(t, "fq", get(t, rec, "net.core.default_qdisc"))
			assert.Equal(t, tc.txqlen, rec.TxQueueLen)
			_, probing := rec.Params.Get("net.ipv4.tcp_mtu_probing")
			assert.False(t, probing)
		})
	}
}

func TestRecommendJumboFrames(t *testing.T) {
	tuning := defaultTuning(t)

	rec, err := Recommend(tuning, Input{SpeedBps: 10_000_000_000, MTU: 9000})
	require.NoError(t, err)
	assert.Equal(t, "1", get(t, rec, "net.ipv4.tcp_mtu_probing"))

	rec, err = Recommend(tuning, Input{SpeedBps: 10_000_000_000, MTU: 8000})
	require.NoError(t, err)
	_, ok := rec.Params.Get("net.ipv4.tcp_mtu_probing")
	assert.False(t, ok)

	rec, err = Recommend(tuning, Input{SpeedBps: 10_000_000_000})
	require.NoError(t, err)
	_, ok = rec.Params.Get("net.ipv4.tcp_mtu_probing")
	assert.False(t, ok)
}

func TestRecommendOSRules(t *testing.T) {
	tuning := defaultTuning(t)
	centos6 := sysinfo.OSRelease{ID: "centos", Name: "CentOS Linux", VersionID: "6.10"}

	rec, err := Recommend(tuning, Input{SpeedBps: 10_000_000_000, OS: centos6})
	require.NoError(t, err)
	assert.Equal(t, "250000", get(t, rec, "net.core.netdev_max_backlog"))

	rec, err = Recommend(tuning, Input{SpeedBps: 1_000_000_000, OS: centos6})
	require.NoError(t, err)
	_, ok := rec.Params.Get("net.core.netdev_max_backlog")
	assert.False(t, ok)

	rec, err = Recommend(tuning, Input{SpeedBps: 10_000_000_000, KernelRelease: "2.6.32-754.el6.x86_64", Pacing: true})
	require.NoError(t, err)
	_, ok = rec.Params.Get("net.core.default_qdisc")
	assert.False(t, ok)
	assert.False(t, rec.Pacing)
	assert.NotEmpty(t, rec.Notes)
}

func TestRecommendPacing(t *testing.T) {
	tuning := defaultTuning(t)

	rec, err := Recommend(tuning, Input{SpeedBps: 10_000_000_000, KernelRelease: "5.14.0", Pacing: true})
	require.NoError(t, err)
	assert.True(t, rec.Pacing)
	assert.Equal(t, int64(8000), rec.PacingRateMbit)

	rec, err = Recommend(tuning, Input{SpeedBps: 10_000_000_000, Pacing: true, PacingRateMbit: 2500})
	require.NoError(t, err)
	assert.Equal(t, int64(2500), rec.PacingRateMbit)

	_, err = Recommend(tuning, Input{Pacing: true})
	require.Error(t, err)
}

func TestRecommendExtraWinsLast(t *testing.T) {
	tuning := defaultTuning(t)
	tuning.Extra = map[string]string{
		"net/core/rmem_max": "1048576",
		"net.ipv4.tcp_sack": "1",
	}

	rec, err := Recommend(tuning, Input{SpeedBps: 10_000_000_000})
	require.NoError(t, err)
	assert.Equal(t, "1048576", get(t, rec, "net.core.rmem_max"))
	keys := rec.Params.Keys()
	assert.Equal(t, "net.ipv4.tcp_sack", keys[len(keys)-1])
}

func TestRecommendDoesNotMutateTuning(t *testing.T) {
	tuning := defaultTuning(t)
	before := len(tuning.Params)
	_, err := Recommend(tuning, Input{SpeedBps: 10_000_000_000, KernelRelease: "3.10.0"})
	require.NoError(t, err)
	assert.Len(t, tuning.Params, before)
	assert.Equal(t, "fq", tuning.Params["net.core.default_qdisc"])
}
