// Package metrics exposes Prometheus metrics for a running environment.
//
// A Collector owns its own registry so several servers (and tests) can
// run in one process. The admin API mounts Collector.Handler at
// /__admin/metrics.
//
// # Metrics
//
//   - mockenv_requests_total{method, route, status}
//   - mockenv_request_duration_seconds{method, route}
//   - mockenv_selections_total{outcome}
//   - mockenv_template_errors_total{source}
//   - mockenv_proxy_requests_total{status}
//   - mockenv_callbacks_total{result}
//   - mockenv_websocket_connections{route}
//   - mockenv_run_restarts_total
//
// Go runtime and process collectors are registered as well.
package metrics
