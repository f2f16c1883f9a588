package traffic

import (
	"bytes"
	"context"
	"os/exec"

	"github.com/vishvananda/netlink"
)

// NetlinkClient abstracts netlink operations for easier testing and substitution.
type NetlinkClient interface {
	LinkList() ([]netlink.Link, error)
	LinkByName(name string) (netlink.Link, error)
	LinkSetTxQLen(link netlink.Link, qlen int) error
}

// CommandExecutor abstracts command execution.
type CommandExecutor interface {
	Run(ctx context.Context, name string, args []string) (string, error)
}

type defaultNetlinkClient struct{}

func (defaultNetlinkClient) LinkList() ([]netlink.Link, error) {
	return netlink.LinkList()
}

func (defaultNetlinkClient) LinkByName(name string) (netlink.Link, error) {
	return netlink.LinkByName(name)
}

func (defaultNetlinkClient) LinkSetTxQLen(link netlink.Link, qlen int) error {
	return netlink.LinkSetTxQLen(link, qlen)
}

// DefaultNetlinkClient returns the client backed by the host's netlink socket.
func DefaultNetlinkClient() NetlinkClient {
	return defaultNetlinkClient{}
}

type processExecutor struct{}

func (processExecutor) Run(ctx context.Context, name string, args []string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output
	err := cmd.Run()
	return output.String(), err
}

// DefaultExecutor returns an executor that runs processes on the host.
func DefaultExecutor() CommandExecutor {
	return processExecutor{}
}

func ensureExecutor(executor CommandExecutor) CommandExecutor {
	if executor != nil {
		return executor
	}
	return processExecutor{}
}
