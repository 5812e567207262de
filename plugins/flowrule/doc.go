// Package flowrule implements an in-memory store of device forwarding tables.
// The store is the southbound through which forwarding rules are read,
// installed and removed. Installed rules are exposed over REST and counted
// per device in Prometheus metrics.
package flowrule
