package metrics

// Package metrics declares the Prometheus collectors of the engine. They are
// registered with the default registry and served on /metrics.
