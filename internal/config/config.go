package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// defaultConfig is the base layer applied before /etc/fdtune/config.toml and drop-ins.
//
//go:embed defaults.toml
var defaultConfig string

// Default returns the configuration built from the embedded defaults only.
func Default() (Config, error) {
	var cfg Config
	dto, err := parseConfigDTO(defaultConfig)
	if err != nil {
		return cfg, fmt.Errorf("failed to parse embedded defaults: %w", err)
	}
	if err := cfg.Update(dto); err != nil {
		return cfg, fmt.Errorf("failed to apply embedded defaults: %w", err)
	}
	return cfg, nil
}

// ConfigSource orchestrates loading configuration from multiple sources.
type ConfigSource struct {
	Path      string
	DropInDir string
}

// Read loads and returns the complete Config by merging all layers:
//  1. Embedded defaults
//  2. Main configuration file
//  3. Drop-in files (*.toml), in lexicographic order
//
// A missing main file or drop-in directory is not an error; a malformed one is.
func (cs *ConfigSource) Read() (Config, error) {
	resolved, err := Default()
	if err != nil {
		return resolved, err
	}

	if cs.Path != "" {
		data, err := os.ReadFile(cs.Path)
		switch {
		case err == nil:
			dto, err := parseConfigDTO(string(data))
			if err != nil {
				return resolved, fmt.Errorf("failed to parse %s: %w", cs.Path, err)
			}
			if err := resolved.Update(dto); err != nil {
				return resolved, fmt.Errorf("failed to apply %s: %w", cs.Path, err)
			}
		case !os.IsNotExist(err):
			return resolved, fmt.Errorf("failed to load %s: %w", cs.Path, err)
		}
	}

	paths, err := cs.findDropInFiles()
	if err != nil {
		return resolved, err
	}
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return resolved, fmt.Errorf("failed to load %s: %w", path, err)
		}
		dto, err := parseConfigDTO(string(data))
		if err != nil {
			return resolved, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		if err := resolved.Update(dto); err != nil {
			return resolved, fmt.Errorf("failed to apply %s: %w", path, err)
		}
	}

	if err := resolved.Validate(); err != nil {
		return resolved, fmt.Errorf("invalid configuration: %w", err)
	}
	return resolved, nil
}

// findDropInFiles returns sorted paths to drop-in files, or nil when the directory is absent.
func (cs *ConfigSource) findDropInFiles() ([]string, error) {
	if cs.DropInDir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(cs.DropInDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read drop-in directory %s: %w", cs.DropInDir, err)
	}

	var filenames []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".toml") {
			continue
		}
		filenames = append(filenames, filepath.Join(cs.DropInDir, entry.Name()))
	}
	sort.Strings(filenames)
	return filenames, nil
}

// configDTO mirrors the TOML file. Pointer fields distinguish "not set" from zero values.
type configDTO struct {
	SysctlPath     *string    `toml:"sysctl-path"`
	BootScriptPath *string    `toml:"boot-script-path"`
	OSReleasePath  *string    `toml:"os-release-path"`
	SysfsNetDir    *string    `toml:"sysfs-net-dir"`
	Tool           *string    `toml:"tool"`
	LogLevel       *string    `toml:"log-level"`
	ReloadSysctl   *bool      `toml:"reload-sysctl"`
	Tuning         *tuningDTO `toml:"tuning"`
}

type tuningDTO struct {
	JumboMTU            *int              `toml:"jumbo-mtu"`
	TxQueueLen          *int              `toml:"txqueuelen"`
	TxQueueMinSpeedGbps *float64          `toml:"txqueuelen-min-speed-gbps"`
	PacingFraction      *float64          `toml:"pacing-fraction"`
	TCPMinBuffer        *string           `toml:"tcp-min-buffer"`
	TCPReadDefault      *string           `toml:"tcp-read-default"`
	TCPWriteDefault     *string           `toml:"tcp-write-default"`
	Params              map[string]string `toml:"params"`
	Extra               map[string]string `toml:"extra"`
	Tiers               []tierDTO         `toml:"tier"`
}

type tierDTO struct {
	Name         string  `toml:"name"`
	MinSpeedGbps float64 `toml:"min-speed-gbps"`
	CoreMax      string  `toml:"core-max"`
	TCPMax       string  `toml:"tcp-max"`
}

func parseConfigDTO(data string) (configDTO, error) {
	var dto configDTO
	if _, err := toml.Decode(data, &dto); err != nil {
		return dto, fmt.Errorf("failed to parse TOML: %w", err)
	}
	return dto, nil
}

// Update applies the values set in dto. Params and extra entries merge key by key
// and an empty value removes the key; a tier list replaces the previous one.
func (c *Config) Update(dto configDTO) error {
	assign := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	assign(&c.SysctlPath, dto.SysctlPath)
	assign(&c.BootScriptPath, dto.BootScriptPath)
	assign(&c.OSReleasePath, dto.OSReleasePath)
	assign(&c.SysfsNetDir, dto.SysfsNetDir)
	assign(&c.Tool, dto.Tool)

	if dto.LogLevel != nil {
		level, err := ParseLogLevel(*dto.LogLevel)
		if err != nil {
			return err
		}
		c.LogLevel = level
	}
	if dto.ReloadSysctl != nil {
		c.ReloadSysctl = *dto.ReloadSysctl
	}
	if dto.Tuning != nil {
		return c.Tuning.update(*dto.Tuning)
	}
	return nil
}

func (t *Tuning) update(dto tuningDTO) error {
	if dto.JumboMTU != nil {
		t.JumboMTU = *dto.JumboMTU
	}
	if dto.TxQueueLen != nil {
		t.TxQueueLen = *dto.TxQueueLen
	}
	if dto.TxQueueMinSpeedGbps != nil {
		t.TxQueueMinSpeedGbps = *dto.TxQueueMinSpeedGbps
	}
	if dto.PacingFraction != nil {
		t.PacingFraction = *dto.PacingFraction
	}

	sizes := []struct {
		name string
		dst  *int64
		src  *string
	}{
		{"tcp-min-buffer", &t.TCPMinBuffer, dto.TCPMinBuffer},
		{"tcp-read-default", &t.TCPReadDefault, dto.TCPReadDefault},
		{"tcp-write-default", &t.TCPWriteDefault, dto.TCPWriteDefault},
	}
	for _, s := range sizes {
		if s.src == nil {
			continue
		}
		size, err := ParseSize(*s.src)
		if err != nil {
			return fmt.Errorf("tuning.%s: %w", s.name, err)
		}
		*s.dst = size
	}

	t.Params = mergeParams(t.Params, dto.Params)
	t.Extra = mergeParams(t.Extra, dto.Extra)

	if dto.Tiers != nil {
		tiers := make([]Tier, 0, len(dto.Tiers))
		for _, td := range dto.Tiers {
			coreMax, err := ParseSize(td.CoreMax)
			if err != nil {
				return fmt.Errorf("tuning.tier %q core-max: %w", td.Name, err)
			}
			tcpMax, err := ParseSize(td.TCPMax)
			if err != nil {
				return fmt.Errorf("tuning.tier %q tcp-max: %w", td.Name, err)
			}
			tiers = append(tiers, Tier{
				Name:         td.Name,
				MinSpeedGbps: td.MinSpeedGbps,
				CoreMax:      coreMax,
				TCPMax:       tcpMax,
			})
		}
		t.Tiers = tiers
	}
	return nil
}

func mergeParams(base, overrides map[string]string) map[string]string {
	if len(overrides) == 0 {
		return base
	}
	merged := make(map[string]string, len(base)+len(overrides))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overrides {
		if strings.TrimSpace(v) == "" {
			delete(merged, k)
			continue
		}
		merged[k] = strings.TrimSpace(v)
	}
	return merged
}
