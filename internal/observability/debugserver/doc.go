// Package debugserver runs the optional local HTTP endpoint: health, Prometheus
// metrics, read-only JSON views of the pipeline, and pprof.
package debugserver
