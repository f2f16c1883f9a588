package traffic

import (
	"regexp"
	"strconv"
	"strings"
)

var speedPattern = regexp.MustCompile(`(?i)speed:\s*([0-9]+)\s*mb/s`)

// parseEthtoolSpeed extracts the link speed in Mb/s from `ethtool <if>` output.
// Unknown or missing speeds yield false.
func parseEthtoolSpeed(output string) (int64, bool) {
	match := speedPattern.FindStringSubmatch(output)
	if match == nil {
		return 0, false
	}
	mbit, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil || mbit <= 0 {
		return 0, false
	}
	return mbit, true
}

// RingParams holds ring buffer sizes reported by `ethtool -g`.
type RingParams struct {
	MaxRX     int
	MaxTX     int
	CurrentRX int
	CurrentTX int
}

// Targets returns the sizes to raise each ring to. A ring already at its
// maximum, or with an unknown maximum, yields zero.
func (r RingParams) Targets() (rx, tx int) {
	if r.MaxRX > 0 && r.CurrentRX < r.MaxRX {
		rx = r.MaxRX
	}
	if r.MaxTX > 0 && r.CurrentTX < r.MaxTX {
		tx = r.MaxTX
	}
	return rx, tx
}

// parseRingParams reads the pre-set maximums and current RX/TX sizes.
func parseRingParams(output string) (RingParams, bool) {
	var (
		params  RingParams
		section int
		found   bool
	)
	const (
		sectionNone = iota
		sectionMax
		sectionCurrent
	)

	for _, ln := range strings.Split(output, "\n") {
		ln = strings.TrimSpace(ln)
		lower := strings.ToLower(ln)
		switch {
		case strings.HasPrefix(lower, "pre-set maximums"):
			section = sectionMax
			continue
		case strings.HasPrefix(lower, "current hardware settings"):
			section = sectionCurrent
			continue
		}
		if section == sectionNone {
			continue
		}

		parts := strings.SplitN(ln, ":", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.ToUpper(strings.TrimSpace(parts[0]))
		if key != "RX" && key != "TX" {
			continue
		}
		value, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			continue
		}
		found = true
		switch {
		case section == sectionMax && key == "RX":
			params.MaxRX = value
		case section == sectionMax && key == "TX":
			params.MaxTX = value
		case section == sectionCurrent && key == "RX":
			params.CurrentRX = value
		case section == sectionCurrent && key == "TX":
			params.CurrentTX = value
		}
	}
	return params, found
}
