// Package topology provides the topology and device directory services
// consumed by the forwarding-state reconciliation.
//
// The Plugin implemented here is a static topology provider: devices, ports
// (with the "portMac" annotation) and links are loaded from the file given by
// the "topology-file" option of topology.conf and may be replaced at run-time:
//
//	$ curl -X PUT --data-binary @topology.yaml localhost:9191/topology
//
// Every change produces a new immutable Snapshot and a TopologyChange
// notification for all watchers.
package topology
