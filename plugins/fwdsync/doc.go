// Package fwdsync keeps IPv4 forwarding rules of all devices converged with
// the network topology.
//
// Every device is assigned an address derived from its ID (see addrmap).
// For every ordered pair of available devices (src, dst) the plugin selects
// the cheapest path (see pathsel), synthesizes the rule for the first hop
// leaving src (see rulesynth) and reconciles it with the table of src
// (see reconciler). A device reaches its own address through a local rule
// with broadcast destination MAC.
//
// Passes are always full recomputations and run serialized in the controller
// event loop: at startup, on healing resyncs and on every topology change.
// Topology changes arriving during a pass are coalesced into a single
// further pass. On Close all rules owned by the application are removed.
package fwdsync
