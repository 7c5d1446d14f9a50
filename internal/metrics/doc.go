// Package metrics defines the Prometheus instruments for the voice analyzer.
package metrics
