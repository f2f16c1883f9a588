package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "/etc/sysctl.conf", cfg.SysctlPath)
	assert.Equal(t, "/etc/rc.local", cfg.BootScriptPath)
	assert.Equal(t, "fdtune", cfg.Tool)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.True(t, cfg.ReloadSysctl)

	assert.Equal(t, 8000, cfg.Tuning.JumboMTU)
	assert.Equal(t, 10000, cfg.Tuning.TxQueueLen)
	assert.Equal(t, int64(4096), cfg.Tuning.TCPMinBuffer)
	assert.Equal(t, int64(87380), cfg.Tuning.TCPReadDefault)
	assert.Equal(t, int64(65536), cfg.Tuning.TCPWriteDefault)
	assert.Equal(t, "fq", cfg.Tuning.Params["net.core.default_qdisc"])

	tiers := cfg.Tuning.SortedTiers()
	require.Len(t, tiers, 4)
	assert.Equal(t, "100g", tiers[0].Name)
	assert.Equal(t, int64(2<<30), tiers[0].CoreMax)
	assert.Equal(t, int64(100_000_000_000), tiers[0].MinSpeedBps())
	assert.Equal(t, "default", tiers[3].Name)
	assert.Equal(t, int64(64<<20), tiers[3].CoreMax)
	assert.Equal(t, int64(32<<20), tiers[3].TCPMax)
}

func TestReadLayers(t *testing.T) {
	dir := t.TempDir()
	mainPath := filepath.Join(dir, "config.toml")
	dropInDir := filepath.Join(dir, "config.toml.d")
	require.NoError(t, os.Mkdir(dropInDir, 0o755))

	require.NoError(t, os.WriteFile(mainPath, []byte(`
sysctl-path = "/etc/sysctl.d/90-fdtune.conf"
log-level = "warn"

[tuning]
jumbo-mtu = 9000

[tuning.extra]
"net.ipv4.tcp_congestion_control" = "htcp"
`), 0o644))

	require.NoError(t, os.WriteFile(filepath.Join(dropInDir, "20-late.toml"), []byte(`
[tuning]
pacing-fraction = 0.5
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dropInDir, "10-early.toml"), []byte(`
[tuning]
pacing-fraction = 0.9

[tuning.params]
"net.core.default_qdisc" = ""
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dropInDir, "ignored.conf"), []byte("not toml"), 0o644))

	cs := &ConfigSource{Path: mainPath, DropInDir: dropInDir}
	cfg, err := cs.Read()
	require.NoError(t, err)

	assert.Equal(t, "/etc/sysctl.d/90-fdtune.conf", cfg.SysctlPath)
	assert.Equal(t, "/etc/rc.local", cfg.BootScriptPath, "unset keys keep defaults")
	assert.Equal(t, slog.LevelWarn, cfg.LogLevel)
	assert.Equal(t, 9000, cfg.Tuning.JumboMTU)
	assert.Equal(t, 0.5, cfg.Tuning.PacingFraction, "drop-ins apply in lexicographic order")
	assert.Equal(t, "htcp", cfg.Tuning.Extra["net.ipv4.tcp_congestion_control"])
	_, hasQdisc := cfg.Tuning.Params["net.core.default_qdisc"]
	assert.False(t, hasQdisc, "empty value removes a param")
	assert.Equal(t, "1", cfg.Tuning.Params["net.ipv4.tcp_no_metrics_save"])
	assert.Len(t, cfg.Tuning.Tiers, 4, "tiers untouched when not redefined")
}

func TestReadReplacesTiers(t *testing.T) {
	dir := t.TempDir()
	mainPath := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(mainPath, []byte(`
[[tuning.tier]]
name = "base"
min-speed-gbps = 0.0
core-max = "16MiB"
tcp-max = "16MiB"

[[tuning.tier]]
name = "25g"
min-speed-gbps = 25.0
core-max = "1GiB"
tcp-max = "512MiB"
`), 0o644))

	cs := &ConfigSource{Path: mainPath, DropInDir: filepath.Join(dir, "missing.d")}
	cfg, err := cs.Read()
	require.NoError(t, err)
	require.Len(t, cfg.Tuning.Tiers, 2)
	assert.Equal(t, "25g", cfg.Tuning.SortedTiers()[0].Name)
}

func TestReadMissingMainFile(t *testing.T) {
	dir := t.TempDir()
	cs := &ConfigSource{Path: filepath.Join(dir, "absent.toml"), DropInDir: filepath.Join(dir, "absent.d")}
	cfg, err := cs.Read()
	require.NoError(t, err)
	assert.Equal(t, "/etc/sysctl.conf", cfg.SysctlPath)
}

func TestReadRejectsInvalidFiles(t *testing.T) {
	tests := map[string]string{
		"malformed toml":   "sysctl-path = ",
		"bad size":         "[tuning]\ntcp-min-buffer = \"lots\"",
		"bad level":        "log-level = \"LOUD\"",
		"relative path":    "sysctl-path = \"sysctl.conf\"",
		"pacing fraction":  "[tuning]\npacing-fraction = 1.5",
		"no default tier":  "[[tuning.tier]]\nname = \"10g\"\nmin-speed-gbps = 10.0\ncore-max = \"1GiB\"\ntcp-max = \"1GiB\"",
		"bad extra key":    "[tuning.extra]\n\"nodots\" = \"1\"",
		"duplicated tiers": "[[tuning.tier]]\nname = \"a\"\ncore-max = \"1MiB\"\ntcp-max = \"1MiB\"\n[[tuning.tier]]\nname = \"a\"\ncore-max = \"1MiB\"\ntcp-max = \"1MiB\"",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
			cs := &ConfigSource{Path: path}
			_, err := cs.Read()
			assert.Error(t, err)
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	level, err := ParseLogLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	_, err = ParseLogLevel("verbose")
	assert.Error(t, err)
}
