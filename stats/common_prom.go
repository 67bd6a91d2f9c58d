// Package stats registers and tracks relay runtime statistics: connected
// control sessions, open streams, and relayed bytes - Prometheus-notified.
/*
 * Copyright (c) 2024-2025, NVIDIA CORPORATION. All rights reserved.
 */
package stats

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metric names: fileflow_<comm>_<suffix>
var (
	Senders = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fileflow_senders_connected",
		Help: "registered sender control sessions",
	})
	Receivers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fileflow_receivers_connected",
		Help: "registered receiver control sessions",
	})
	Streams = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fileflow_streams_open",
		Help: "stream records whose info slot or data pipe is not yet taken",
	})

	DownloadCount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fileflow_download_n",
		Help: "download requests admitted",
	})
	UploadCount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fileflow_upload_n",
		Help: "upload requests matched to a stream",
	})
	TxBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fileflow_tx_size",
		Help: "file bytes relayed upload-to-download",
	})
	DecodeErrCount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fileflow_err_decode_n",
		Help: "malformed control frames dropped",
	})
	StreamEvictedCount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fileflow_stream_evicted_n",
		Help: "stale stream records evicted by housekeeping",
	})
)
