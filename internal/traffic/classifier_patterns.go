package traffic

import "strings"

var (
	// virtualVendorIDs maps PCI vendor IDs to virtualization platforms.
	// These IDs are read from /sys/class/net/{iface}/device/vendor.
	virtualVendorIDs = map[string]struct{}{
		"0x1414": {}, // Microsoft Hyper-V
		"0x15ad": {}, // VMware
		"0x1af4": {}, // Red Hat (VirtIO)
		"0x1d0f": {}, // Amazon Web Services (AWS)
		"0x1ae0": {}, // Google Cloud Platform (GCP)
		"0x5853": {}, // XenSource (Xen hypervisor)
	}

	// virtualDriverModules identifies virtual NIC kernel drivers.
	virtualDriverModules = map[string]struct{}{
		"ena":        {},
		"gve":        {},
		"hv_netvsc":  {},
		"virtio_net": {},
		"vmxnet3":    {},
	}

	// skippedPrefixes name software interfaces that never carry the host's bulk
	// transfers and report no meaningful link speed.
	skippedPrefixes = []string{
		"ifb",
		"docker",
		"veth",
		"virbr",
		"cni",
		"flannel",
		"cali",
		"fwbr",
		"fwpr",
		"fwln",
		"tun",
		"tap",
		"wg",
		"zt",
	}
)

// isSkippedInterface reports whether name matches a software interface pattern.
func isSkippedInterface(name string) bool {
	for _, prefix := range skippedPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}
