package sysinfo

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ReadInt reads a single integer from a sysfs or procfs attribute file.
func ReadInt(path string) (int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", path, err)
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		return 0, fmt.Errorf("%s is empty", path)
	}

	value, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}
	return value, nil
}
