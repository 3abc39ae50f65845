/*
Package metrics provides Prometheus metrics collection and exposition for
shadowd.

The metrics package defines and registers shadowd's metrics using the
Prometheus client library: local store size, request handler latency and
outcomes, sync queue depth, sync executor duration and outcomes, conflict
resolutions, and cloud client call latency/rate-limiting. Metrics are
exposed via pkg/control's HTTP /metrics endpoint for scraping.

# Metric groups

Document store:
  - shadowd_shadows_total{deleted}
  - shadowd_document_size_bytes

Request handlers (C4):
  - shadowd_requests_total{operation,status}
  - shadowd_request_duration_seconds{operation}

Sync queue (C5):
  - shadowd_queue_depth
  - shadowd_queue_merges_total

Sync executor (C6):
  - shadowd_sync_duration_seconds{kind}
  - shadowd_sync_outcomes_total{kind,outcome}
  - shadowd_conflicts_total{resolution}

Cloud client (C8):
  - shadowd_cloud_calls_total{method,status}
  - shadowd_cloud_call_duration_seconds{method}
  - shadowd_cloud_rate_limited_total
  - shadowd_cloud_connected

# Timer

Timer is a small helper for recording operation duration to a histogram
without repeating time.Since(start).Seconds() at every call site:

	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.RequestDuration, "update")
*/
package metrics
