// Package metrics reports detector and shard counters. Names are dotted,
// e.g. failure_detector.probe.ok or shard.0.nodes.
package metrics

import "time"

// Metrics is what detectors and shards report through: probe outcomes and
// latency, detected deaths, dissemination failures and registry sizes.
type Metrics interface {
	Increment(string)
	Duration(string, time.Duration)
	Gauge(string, int)
}
