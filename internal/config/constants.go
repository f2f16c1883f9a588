package config

import "time"

const (
	// MinMTU and MaxMTU define acceptable MTU boundaries (RFC 791).
	MinMTU = 68
	MaxMTU = 65535

	// MinQueueLen and MaxQueueLen bound transmit queue lengths passed to ip.
	MinQueueLen = 1
	MaxQueueLen = 1_000_000

	// MaxKernelBuffer is the largest value the kernel accepts for an int sysctl
	// such as net.core.rmem_max.
	MaxKernelBuffer = 1<<31 - 1

	// DefaultCommandTimeout bounds external tool invocations (ethtool, tc, sysctl).
	DefaultCommandTimeout = 10 * time.Second

	// DefaultConfigPath and DefaultDropInDir locate the layered configuration.
	DefaultConfigPath = "/etc/fdtune/config.toml"
	DefaultDropInDir  = "/etc/fdtune/config.toml.d"

	// DefaultSysfsNetDir is where the kernel exposes per-interface attributes.
	DefaultSysfsNetDir = "/sys/class/net"
)
