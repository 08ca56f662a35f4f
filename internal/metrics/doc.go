/*
Package metrics provides Prometheus-based metrics collection for the
bridge, covering the HTTP front and the browser exchange path.

# Overview

The package registers its instruments through promauto under a single
namespace, so a Collector is created exactly once per process. The HTTP
middleware records request counts, latencies, and response sizes; the
engine records exchange outcomes, retry causes, rate-limit waits, and
recovery reloads.

# Core types

  - Collector: holds the Counter, Histogram, and Gauge vectors, grouped
    by concern.

# Instruments

  - HTTP: request totals, duration, and response size, grouped by
    method/path, with status classed as 2xx/3xx/4xx/5xx.
  - Exchanges: sends_total by model and outcome, end-to-end send
    duration, polls needed per accepted reply.
  - Recovery: retry counts by error code, scheduled rate-limit waits,
    page reloads, self-imposed cooldowns.
  - Registry: gauge of conversation threads currently held open.
*/
package metrics
