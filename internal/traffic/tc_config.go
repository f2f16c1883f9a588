package traffic

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"fdtune/internal/bootscript"
)

// QdiscConfig describes a traffic control qdisc operation.
type QdiscConfig struct {
	Device  string
	Root    bool
	Parent  string
	Handle  string
	Kind    string
	Options []string
}

// ReplaceArgs renders the tc arguments required to replace the qdisc.
func (qc QdiscConfig) ReplaceArgs() []string {
	args := []string{"qdisc", "replace", "dev", qc.Device}

	switch {
	case qc.Root:
		args = append(args, "root")
	case qc.Parent != "":
		args = append(args, "parent", qc.Parent)
	}

	if qc.Handle != "" {
		args = append(args, "handle", qc.Handle)
	}

	if qc.Kind != "" {
		args = append(args, qc.Kind)
	}
	if len(qc.Options) > 0 {
		args = append(args, qc.Options...)
	}
	return args
}

func splitQdiscSpec(spec []string) (string, []string) {
	if len(spec) == 0 {
		return "", nil
	}
	kind := spec[0]
	if len(spec) == 1 {
		return kind, nil
	}
	options := make([]string, len(spec)-1)
	copy(options, spec[1:])
	return kind, options
}

func rootQdiscConfig(device string, spec []string) QdiscConfig {
	kind, options := splitQdiscSpec(spec)
	return QdiscConfig{
		Device:  device,
		Root:    true,
		Kind:    kind,
		Options: options,
	}
}

// CommandKind names the interface setting a Command changes.
type CommandKind int

const (
	CommandTxQueueLen CommandKind = iota
	CommandRing
	CommandPacing
)

func (k CommandKind) String() string {
	switch k {
	case CommandTxQueueLen:
		return "txqueuelen"
	case CommandRing:
		return "ring"
	case CommandPacing:
		return "pacing"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Command is an interface-level setting. It is persisted as a boot script
// directive and can be applied to the running system.
type Command struct {
	Kind       CommandKind
	Interface  string
	Program    string
	Args       []string
	TxQueueLen int
	Comment    string
	Identity   []string
	// Alternatives name the same resource as set by other tools.
	Alternatives [][]string
}

// Line renders the shell command line.
func (c Command) Line() string {
	if len(c.Args) == 0 {
		return c.Program
	}
	return c.Program + " " + strings.Join(c.Args, " ")
}

// Directive returns the boot script form of the command.
func (c Command) Directive() bootscript.Directive {
	alternatives := make([][]string, 0, len(c.Alternatives))
	for _, alt := range c.Alternatives {
		alternatives = append(alternatives, slices.Clone(alt))
	}
	return bootscript.Directive{
		Command:      c.Line(),
		Comment:      c.Comment,
		Identity:     slices.Clone(c.Identity),
		Alternatives: alternatives,
	}
}

// PacingDirective installs fq on the interface root with maxrate set to rateMbit.
func PacingDirective(iface string, rateMbit int64) Command {
	rate := strconv.FormatInt(rateMbit, 10) + "mbit"
	qc := rootQdiscConfig(iface, []string{"fq", "maxrate", rate})
	return Command{
		Kind:      CommandPacing,
		Interface: iface,
		Program:   "tc",
		Args:      qc.ReplaceArgs(),
		Comment:   fmt.Sprintf("fq pacing at %d Mbit/s on %s", rateMbit, iface),
		Identity:  []string{"tc", "qdisc", iface, "root"},
	}
}

// TxQueueDirective sets the transmit queue length of the interface.
func TxQueueDirective(iface string, qlen int) Command {
	return Command{
		Kind:       CommandTxQueueLen,
		Interface:  iface,
		Program:    "ip",
		Args:       []string{"link", "set", "dev", iface, "txqueuelen", strconv.Itoa(qlen)},
		TxQueueLen: qlen,
		Comment:    fmt.Sprintf("transmit queue length %d on %s", qlen, iface),
		Identity:   []string{"ip", "link", "set", iface, "txqueuelen"},
		Alternatives: [][]string{
			{"ifconfig", iface, "txqueuelen"},
		},
	}
}

// RingDirective sets the RX and TX ring sizes. A zero size leaves that ring alone.
func RingDirective(iface string, rx, tx int) Command {
	args := []string{"-G", iface}
	var parts []string
	if rx > 0 {
		args = append(args, "rx", strconv.Itoa(rx))
		parts = append(parts, fmt.Sprintf("rx %d", rx))
	}
	if tx > 0 {
		args = append(args, "tx", strconv.Itoa(tx))
		parts = append(parts, fmt.Sprintf("tx %d", tx))
	}
	return Command{
		Kind:      CommandRing,
		Interface: iface,
		Program:   "ethtool",
		Args:      args,
		Comment:   fmt.Sprintf("ring buffers %s on %s", strings.Join(parts, ", "), iface),
		Identity:  []string{"ethtool", "-G", iface},
		Alternatives: [][]string{
			{"ethtool", "--set-ring", iface},
		},
	}
}
