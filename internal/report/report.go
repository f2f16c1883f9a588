// Package report renders a human readable summary of a tuning run.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"fdtune/internal/app"
	"fdtune/internal/bootscript"
	"fdtune/internal/sysctlconf"
)

// Options controls what Render prints.
type Options struct {
	// ShowContent prints the full text that would be written during a dry run.
	ShowContent bool
}

type styles struct {
	title   lipgloss.Style
	label   lipgloss.Style
	section lipgloss.Style
	added   lipgloss.Style
	kept    lipgloss.Style
	changed lipgloss.Style
	warn    lipgloss.Style
	dim     lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		title:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("205")),
		label:   r.NewStyle().Width(11).Foreground(lipgloss.Color("240")),
		section: r.NewStyle().Bold(true).Foreground(lipgloss.Color("81")),
		added:   r.NewStyle().Foreground(lipgloss.Color("42")),
		kept:    r.NewStyle().Foreground(lipgloss.Color("245")),
		changed: r.NewStyle().Foreground(lipgloss.Color("214")),
		warn:    r.NewStyle().Bold(true).Foreground(lipgloss.Color("208")),
		dim:     r.NewStyle().Foreground(lipgloss.Color("238")),
	}
}

// Render writes the summary of s to w.
func Render(w io.Writer, s app.Summary, opts Options) error {
	st := newStyles(lipgloss.NewRenderer(w))
	var b strings.Builder

	title := "fdtune"
	if s.DryRun {
		title += " (dry run, nothing written)"
	}
	if s.RunID != "" {
		title += " run " + s.RunID
	}
	b.WriteString(st.title.Render(title) + "\n")

	writeField(&b, st, "Interface", s.Interface.String())
	system := s.OS.String()
	if system == "" {
		system = "unknown"
	}
	if s.Kernel != "" {
		system += ", kernel " + s.Kernel
	}
	writeField(&b, st, "System", system)
	writeField(&b, st, "Tier", s.Recommendation.Tier.String())
	if s.Recommendation.Pacing {
		writeField(&b, st, "Pacing", fmt.Sprintf("%d Mbit/s", s.Recommendation.PacingRateMbit))
	}

	renderSysctl(&b, st, s)
	renderBootScript(&b, st, s)

	if len(s.Recommendation.Notes) > 0 {
		b.WriteString("\n" + st.section.Render("Notes") + "\n")
		for _, note := range s.Recommendation.Notes {
			b.WriteString("  " + note + "\n")
		}
	}
	if len(s.Warnings) > 0 {
		b.WriteString("\n" + st.warn.Render("Warnings") + "\n")
		for _, warning := range s.Warnings {
			b.WriteString("  " + warning + "\n")
		}
	}

	if opts.ShowContent && s.DryRun {
		writeContent(&b, st, s.SysctlFile)
		writeContent(&b, st, s.BootScript)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func writeField(b *strings.Builder, st styles, label, value string) {
	b.WriteString(st.label.Render(label) + value + "\n")
}

func fileState(s app.Summary, fc app.FileChange) string {
	switch {
	case !fc.Changed:
		return "unchanged"
	case s.DryRun:
		return "would update"
	case fc.Backup != "":
		return "updated, backup " + fc.Backup
	case !fc.Existed:
		return "created"
	default:
		return "updated"
	}
}

func renderSysctl(b *strings.Builder, st styles, s app.Summary) {
	b.WriteString("\n" + st.section.Render(s.SysctlFile.Path) + " " + st.dim.Render("("+fileState(s, s.SysctlFile)+")") + "\n")

	replaced := make(map[string]struct{}, len(s.Sysctl.Replaced))
	for _, key := range s.Sysctl.Replaced {
		replaced[key] = struct{}{}
	}

	for _, p := range s.Recommendation.Params.Params() {
		class, ok := s.Sysctl.Classify(p.Key)
		if !ok {
			continue
		}
		_, wasReplaced := replaced[p.Key]
		switch {
		case class == sysctlconf.Added:
			b.WriteString(st.added.Render("  + "+p.String()) + "\n")
		case wasReplaced:
			b.WriteString(st.changed.Render("  ~ "+p.String()) + "\n")
		default:
			b.WriteString(st.kept.Render("  = "+p.String()) + "\n")
		}
	}

	for _, sup := range s.Sysctl.Superseded {
		b.WriteString(st.dim.Render(fmt.Sprintf("    superseded line %d (%s): %s", sup.Line, sup.Reason, sup.Original)) + "\n")
	}
	if s.Reloaded && len(s.Reload.Unknown) > 0 {
		b.WriteString(st.warn.Render("  not supported by this kernel: "+strings.Join(s.Reload.Unknown, ", ")) + "\n")
	}
}

func renderBootScript(b *strings.Builder, st styles, s app.Summary) {
	if len(s.Directives) == 0 {
		return
	}
	b.WriteString("\n" + st.section.Render(s.BootScript.Path) + " " + st.dim.Render("("+fileState(s, s.BootScript)+")") + "\n")

	for _, d := range s.Directives {
		kind := fmt.Sprintf("%-10s ", d.Command.Kind)
		applied := ""
		if d.Applied {
			applied = st.dim.Render(" (applied)")
		}
		switch d.Outcome.Kind {
		case bootscript.Inserted:
			b.WriteString(st.added.Render("  + "+kind+d.Command.Line()) + applied + "\n")
		case bootscript.AlreadyIdentical:
			b.WriteString(st.kept.Render("  = "+kind+d.Command.Line()) + applied + "\n")
		case bootscript.ConflictDetected:
			b.WriteString(st.warn.Render(fmt.Sprintf("  ! %sconflict at line %d, left unchanged", kind, d.Outcome.Line)) + "\n")
			b.WriteString(fmt.Sprintf("      existing: %s\n", d.Outcome.Existing))
			b.WriteString(fmt.Sprintf("      proposed: %s\n", d.Outcome.Proposed))
		}
	}
}

func writeContent(b *strings.Builder, st styles, fc app.FileChange) {
	if fc.Path == "" || !fc.Changed {
		return
	}
	b.WriteString("\n" + st.section.Render("--- "+fc.Path+" (would write) ---") + "\n")
	b.WriteString(fc.Content)
	if !strings.HasSuffix(fc.Content, "\n") {
		b.WriteString("\n")
	}
}
