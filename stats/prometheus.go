// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package stats

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "stratum"

// Ensure PrometheusClient implements interface.
var _ StatsClient = &PrometheusClient{}

// PrometheusClient writes metrics to a prometheus Registerer. Collectors are
// registered lazily, keyed by metric name.
type PrometheusClient struct {
	mu         sync.Mutex
	registerer prometheus.Registerer
	tags       []string

	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	timings  map[string]prometheus.Summary
}

// NewPrometheusClient returns a client registering against the default
// prometheus registerer.
func NewPrometheusClient() *PrometheusClient {
	return NewPrometheusClientWithRegisterer(prometheus.DefaultRegisterer)
}

func NewPrometheusClientWithRegisterer(r prometheus.Registerer) *PrometheusClient {
	return &PrometheusClient{
		registerer: r,
		counters:   make(map[string]prometheus.Counter),
		gauges:     make(map[string]prometheus.Gauge),
		timings:    make(map[string]prometheus.Summary),
	}
}

// Tags returns a sorted list of tags on the client.
func (c *PrometheusClient) Tags() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	tags := make([]string, len(c.tags))
	copy(tags, c.tags)
	sort.Strings(tags)
	return tags
}

// WithTags returns a new client with additional tags appended.
func (c *PrometheusClient) WithTags(tags ...string) StatsClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := NewPrometheusClientWithRegisterer(c.registerer)
	n.tags = unionStringSlice(c.tags, tags)
	return n
}

// Count tracks the number of times something occurs.
func (c *PrometheusClient) Count(name string, value int64, rate float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	counter, ok := c.counters[name]
	if !ok {
		counter = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        name,
			ConstLabels: c.constLabels(),
		})
		if err := c.registerer.Register(counter); err != nil {
			if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
				counter = are.ExistingCollector.(prometheus.Counter)
			} else {
				return
			}
		}
		c.counters[name] = counter
	}
	counter.Add(float64(value))
}

// Gauge sets the value of a metric.
func (c *PrometheusClient) Gauge(name string, value float64, rate float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	gauge, ok := c.gauges[name]
	if !ok {
		gauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        name,
			ConstLabels: c.constLabels(),
		})
		if err := c.registerer.Register(gauge); err != nil {
			if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
				gauge = are.ExistingCollector.(prometheus.Gauge)
			} else {
				return
			}
		}
		c.gauges[name] = gauge
	}
	gauge.Set(value)
}

// Timing tracks timing information for a metric.
func (c *PrometheusClient) Timing(name string, value time.Duration, rate float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	summary, ok := c.timings[name]
	if !ok {
		summary = prometheus.NewSummary(prometheus.SummaryOpts{
			Namespace:   namespace,
			Name:        name,
			ConstLabels: c.constLabels(),
		})
		if err := c.registerer.Register(summary); err != nil {
			if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
				summary = are.ExistingCollector.(prometheus.Summary)
			} else {
				return
			}
		}
		c.timings[name] = summary
	}
	summary.Observe(value.Seconds())
}

// Open starts the service.
func (c *PrometheusClient) Open() {}

// Close closes the client.
func (c *PrometheusClient) Close() error { return nil }

// constLabels renders "key:value" tags as prometheus labels. Tags without a
// colon are dropped. Must be called with c.mu held.
func (c *PrometheusClient) constLabels() prometheus.Labels {
	labels := prometheus.Labels{}
	for _, tag := range c.tags {
		for i := 0; i < len(tag); i++ {
			if tag[i] == ':' {
				labels[tag[:i]] = tag[i+1:]
				break
			}
		}
	}
	return labels
}

// unionStringSlice returns a sorted set of tags which combine a & b.
func unionStringSlice(a, b []string) []string {
	m := make(map[string]struct{})
	for _, t := range a {
		m[t] = struct{}{}
	}
	for _, t := range b {
		m[t] = struct{}{}
	}
	out := make([]string, 0, len(m))
	for t := range m {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
