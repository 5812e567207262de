// Package main implements the fwdsync agent: the static topology provider,
// the in-memory rule store and the reconciliation plugin driven by the
// controller event loop, exposed over REST and Prometheus.
package main
