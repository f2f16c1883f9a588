package traffic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/vishvananda/netlink"
)

type fakeNetlink struct {
	links   []netlink.Link
	listErr error
	setQLen map[string]int
}

func (f *fakeNetlink) LinkList() ([]netlink.Link, error) {
	return f.links, f.listErr
}

func (f *fakeNetlink) LinkByName(name string) (netlink.Link, error) {
	for _, link := range f.links {
		if link.Attrs().Name == name {
			return link, nil
		}
	}
	return nil, fmt.Errorf("link %s not found", name)
}

func (f *fakeNetlink) LinkSetTxQLen(link netlink.Link, qlen int) error {
	if f.setQLen == nil {
		f.setQLen = map[string]int{}
	}
	f.setQLen[link.Attrs().Name] = qlen
	return nil
}

type fakeResult struct {
	output string
	err    error
}

type fakeExecutor struct {
	mu      sync.Mutex
	results map[string]fakeResult
	calls   []string
}

func (f *fakeExecutor) Run(_ context.Context, name string, args []string) (string, error) {
	line := strings.TrimSpace(name + " " + strings.Join(args, " "))
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, line)
	if res, ok := f.results[line]; ok {
		return res.output, res.err
	}
	return "", errors.New("exit status 1")
}

func device(name string, index, mtu int) *netlink.Device {
	return &netlink.Device{LinkAttrs: netlink.LinkAttrs{
		Name:   name,
		Index:  index,
		MTU:    mtu,
		TxQLen: 1000,
	}}
}
