// Package observability provides structured logging, Prometheus metrics and
// health checks for the sharing service.
package observability
