package traffic

import (
	"os"
	"path/filepath"
	"strings"
)

// isVirtualHardware reports whether the sysfs entry for name describes a
// paravirtualized or software device rather than a physical NIC.
func isVirtualHardware(sysfsDir, name string) bool {
	sysfsPath := filepath.Join(sysfsDir, name)

	if resolved, err := filepath.EvalSymlinks(sysfsPath); err == nil {
		if isSysfsVirtualPath(resolved) {
			return true
		}
	}

	if driver := interfaceDriverModule(sysfsPath); driver != "" {
		if _, ok := virtualDriverModules[normalizeIdentifier(driver)]; ok {
			return true
		}
	}

	if vendor := interfaceVendor(sysfsPath); vendor != "" {
		if _, ok := virtualVendorIDs[normalizeIdentifier(vendor)]; ok {
			return true
		}
	}

	return false
}

// isSysfsVirtualPath checks if the resolved sysfs path indicates a virtual device.
func isSysfsVirtualPath(resolvedPath string) bool {
	lower := strings.ToLower(resolvedPath)
	if strings.Contains(lower, "/devices/virtual/") {
		return true
	}
	for _, segment := range strings.Split(lower, "/") {
		if strings.HasPrefix(segment, "virtio") || segment == "vmbus" {
			return true
		}
	}
	return false
}

// interfaceDriverModule extracts the kernel driver module name.
func interfaceDriverModule(sysfsPath string) string {
	if module := readLinkBase(filepath.Join(sysfsPath, "device/driver/module")); module != "" {
		return module
	}
	return readLinkBase(filepath.Join(sysfsPath, "device/driver"))
}

func interfaceVendor(sysfsPath string) string {
	data, err := os.ReadFile(filepath.Join(sysfsPath, "device/vendor"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func readLinkBase(path string) string {
	target, err := os.Readlink(path)
	if err != nil {
		return ""
	}
	return filepath.Base(target)
}

// normalizeIdentifier canonicalizes vendor IDs and driver names (hv-netvsc, HV_NETVSC).
func normalizeIdentifier(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	return strings.ReplaceAll(value, "-", "_")
}
