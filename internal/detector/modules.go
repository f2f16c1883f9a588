package detector

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const fqModule = "sch_fq"

// ensureFQAvailable reports whether the fq qdisc is loaded, built in, or loadable.
// Modules are never loaded here.
func ensureFQAvailable(ctx context.Context, env Environment) error {
	if env.ModuleDir != "" {
		if _, err := os.Stat(filepath.Join(env.ModuleDir, fqModule)); err == nil {
			return nil
		}
	}

	if env.KernelRelease != nil && env.ModulesRoot != "" {
		if release, err := env.KernelRelease(); err == nil && release != "" {
			if builtin(filepath.Join(env.ModulesRoot, release, "modules.builtin"), fqModule) {
				return nil
			}
		}
	}

	if env.Probe != nil {
		probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := env.Probe(probeCtx, fqModule); err == nil {
			return nil
		}
	}

	return fmt.Errorf("fq qdisc kernel module (%s) is not available", fqModule)
}

// builtin scans a modules.builtin listing for module.
func builtin(path, module string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	want := module + ".ko"
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if filepath.Base(strings.TrimSpace(scanner.Text())) == want {
			return true
		}
	}
	return false
}
