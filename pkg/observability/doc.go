/*
Package observability turns workflow lifecycle hooks into Prometheus metrics.

Metrics are registered against a caller-supplied registerer so several engines
(or tests) can coexist in one process without colliding on the default registry.
*/
package observability
