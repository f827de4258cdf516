package metrics

import "time"

// Nop is used when no statsd address is configured.
type Nop struct{}

func (Nop) Increment(string)               {}
func (Nop) Duration(string, time.Duration) {}
func (Nop) Gauge(string, int)              {}
