package app

import (
	"fdtune/internal/bootscript"
	"fdtune/internal/persist"
	"fdtune/internal/policy"
	"fdtune/internal/sysctlconf"
	"fdtune/internal/sysinfo"
	"fdtune/internal/traffic"
)

// FileChange describes the outcome for one edited file.
type FileChange struct {
	Path    string
	Existed bool
	Changed bool
	// Backup is empty when nothing was written or the file was new.
	Backup string
	// Content is the text written, or that would be written in a dry run.
	Content string
}

// DirectiveResult pairs an interface command with its boot script outcome.
type DirectiveResult struct {
	Command traffic.Command
	Outcome bootscript.Outcome
	Applied bool
}

// Summary reports everything a run decided and did.
type Summary struct {
	RunID          string
	DryRun         bool
	Interface      traffic.Interface
	// MTU is the MTU the recommendation was computed for: the largest among
	// discovered interfaces, or the chosen interface's when one was named.
	MTU            int
	OS             sysinfo.OSRelease
	Kernel         string
	Recommendation policy.Recommendation
	Sysctl         sysctlconf.MergeResult
	SysctlFile     FileChange
	Reloaded       bool
	Reload         persist.ReloadResult
	Directives     []DirectiveResult
	BootScript     FileChange
	Warnings       []string
}

// Conflicts returns the directives left untouched because the boot script
// already configures the same resource differently.
func (s Summary) Conflicts() []DirectiveResult {
	var out []DirectiveResult
	for _, d := range s.Directives {
		if d.Outcome.Kind == bootscript.ConflictDetected {
			out = append(out, d)
		}
	}
	return out
}
