// Package observability provides the portal's zap logger construction and
// Prometheus collectors for guard decisions, identity verification and the
// approval workflow.
package observability
