// Package metrics exposes Prometheus instrumentation for hollowd:
// transaction throughput and latency, per-collection document counts,
// per-view index sizes, KV operation counters, and compaction timing,
// plus a small health/readiness registry for the serving process.
package metrics
