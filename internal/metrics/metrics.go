// Package metrics exports the outcome of a tuning run in the node_exporter
// textfile format.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "fdtune"

// Snapshot is the state recorded after a run.
type Snapshot struct {
	Interface      string
	SpeedBps       int64
	MTU            int
	Added          int
	AlreadyPresent int
	Replaced       int
	Superseded     int
	// Directives maps a directive kind to its outcome.
	Directives map[string]string
	DryRun     bool
	Time       time.Time
}

type collectors struct {
	registry   *prometheus.Registry
	linkSpeed  *prometheus.GaugeVec
	linkMTU    *prometheus.GaugeVec
	parameters *prometheus.GaugeVec
	directives *prometheus.GaugeVec
	dryRun     prometheus.Gauge
	lastRun    prometheus.Gauge
}

func newCollectors() *collectors {
	c := &collectors{
		registry: prometheus.NewRegistry(),
		linkSpeed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "link_speed_bits_per_second",
			Help:      "Link speed of the tuned interface, 0 when unknown.",
		}, []string{"interface"}),
		linkMTU: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "link_mtu_bytes",
			Help:      "MTU used for the recommendation, 0 when unknown.",
		}, []string{"interface"}),
		parameters: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sysctl_parameters",
			Help:      "Recommended kernel parameters by reconciliation state.",
		}, []string{"state"}),
		directives: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "boot_directive_outcome",
			Help:      "Boot script directive outcome, one series per directive kind.",
		}, []string{"kind", "outcome"}),
		dryRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dry_run",
			Help:      "1 when the last run did not modify the host.",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time of the last completed run.",
		}),
	}
	c.registry.MustRegister(c.linkSpeed, c.linkMTU, c.parameters, c.directives, c.dryRun, c.lastRun)
	return c
}

func (c *collectors) record(s Snapshot) {
	c.linkSpeed.WithLabelValues(s.Interface).Set(float64(s.SpeedBps))
	c.linkMTU.WithLabelValues(s.Interface).Set(float64(s.MTU))

	c.parameters.WithLabelValues("added").Set(float64(s.Added))
	c.parameters.WithLabelValues("already_present").Set(float64(s.AlreadyPresent))
	c.parameters.WithLabelValues("replaced").Set(float64(s.Replaced))
	c.parameters.WithLabelValues("superseded").Set(float64(s.Superseded))

	for kind, outcome := range s.Directives {
		c.directives.WithLabelValues(kind, outcome).Set(1)
	}

	if s.DryRun {
		c.dryRun.Set(1)
	} else {
		c.dryRun.Set(0)
	}
	c.lastRun.Set(float64(s.Time.Unix()))
}

// WriteTextfile renders s into path, replacing it atomically.
func WriteTextfile(path string, s Snapshot) error {
	c := newCollectors()
	c.record(s)
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("write metrics textfile %s: %w", path, err)
	}
	return nil
}
