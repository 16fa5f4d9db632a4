// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package stats_test

import (
	"testing"
	"time"

	"github.com/featurebasedb/stratum/stats"
	"github.com/prometheus/client_golang/prometheus"
	io_prometheus_client "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusClient_Methods(t *testing.T) {
	registry := prometheus.NewRegistry()
	c := stats.NewPrometheusClientWithRegisterer(registry)

	c.Count(stats.MetricPageHits, 3, 1.0)
	c.Count(stats.MetricPageHits, 2, 1.0)
	c.Gauge("pool_size", 128, 1.0)
	c.Timing("fetch_latency", 5*time.Millisecond, 1.0)

	metricFams, err := registry.Gather()
	require.NoError(t, err)

	for _, metricName := range []string{
		"stratum_buffer_page_hits",
		"stratum_pool_size",
		"stratum_fetch_latency",
	} {
		assert.True(t, metricExists(metricName, metricFams), "metric does not exist: %s", metricName)
	}

	for _, fam := range metricFams {
		if fam.GetName() == "stratum_buffer_page_hits" {
			require.Len(t, fam.GetMetric(), 1)
			assert.Equal(t, float64(5), fam.GetMetric()[0].GetCounter().GetValue())
		}
	}
}

func TestPrometheusClient_Tags(t *testing.T) {
	registry := prometheus.NewRegistry()
	c := stats.NewPrometheusClientWithRegisterer(registry)

	tagged := c.WithTags("index:orders", "shard:3")
	assert.Equal(t, []string{"index:orders", "shard:3"}, tagged.Tags())

	tagged.Count(stats.MetricLockGrants, 1, 1.0)
	metricFams, err := registry.Gather()
	require.NoError(t, err)
	require.True(t, metricExists("stratum_lock_grants", metricFams))

	for _, fam := range metricFams {
		if fam.GetName() != "stratum_lock_grants" {
			continue
		}
		labels := fam.GetMetric()[0].GetLabel()
		require.Len(t, labels, 2)
		assert.Equal(t, "index", labels[0].GetName())
		assert.Equal(t, "orders", labels[0].GetValue())
	}
}

func TestNopStatsClient(t *testing.T) {
	c := stats.NopStatsClient
	c.Count("anything", 1, 1.0)
	c.Gauge("anything", 1, 1.0)
	c.Timing("anything", time.Second, 1.0)
	assert.Nil(t, c.Tags())
	assert.NoError(t, c.Close())
}

func metricExists(metricName string, metricFams []*io_prometheus_client.MetricFamily) bool {
	for _, metricFam := range metricFams {
		if metricFam.GetName() == metricName {
			return true
		}
	}
	return false
}
