// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package stats defines the metrics boundary for the storage engine.
package stats

import (
	"time"
)

func init() {
	NopStatsClient = &nopStatsClient{}
}

// StatsClient represents a client to a stats server.
type StatsClient interface {
	// Returns a sorted list of tags on the client.
	Tags() []string

	// Returns a new client with additional tags appended.
	WithTags(tags ...string) StatsClient

	// Tracks the number of times something occurs.
	Count(name string, value int64, rate float64)

	// Sets the value of a metric.
	Gauge(name string, value float64, rate float64)

	// Tracks timing information for a metric.
	Timing(name string, value time.Duration, rate float64)

	// Starts the service
	Open()

	// Closes the client
	Close() error
}

// Metric names emitted by the storage core.
const (
	MetricPageHits       = "buffer_page_hits"
	MetricPageMisses     = "buffer_page_misses"
	MetricPageEvictions  = "buffer_page_evictions"
	MetricPageWritebacks = "buffer_page_writebacks"

	MetricLockGrants     = "lock_grants"
	MetricLockAborts     = "lock_aborts"
	MetricDeadlockVictim = "lock_deadlock_victims"
)

// NopStatsClient represents a client that doesn't do anything.
var NopStatsClient StatsClient

type nopStatsClient struct{}

func (c *nopStatsClient) Tags() []string                                    { return nil }
func (c *nopStatsClient) WithTags(tags ...string) StatsClient               { return c }
func (c *nopStatsClient) Count(name string, value int64, rate float64)      {}
func (c *nopStatsClient) Gauge(name string, value float64, rate float64)    {}
func (c *nopStatsClient) Timing(name string, value time.Duration, rate float64) {
}
func (c *nopStatsClient) Open()        {}
func (c *nopStatsClient) Close() error { return nil }
