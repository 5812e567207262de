// Copyright (c) 2018 Cisco and/or its affiliates.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at:
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package model

import (
	"bytes"
	"fmt"
	"net"

	topology "github.com/cobaal/fwdsync/plugins/topology/model"
)

const (
	// EthTypeIPv4 is the ethertype matched by IPv4 forwarding rules.
	EthTypeIPv4 uint16 = 0x0800

	// NoOutput is used in Treatment when the rule has no output action.
	NoOutput topology.PortNumber = 0
)

// BroadcastMAC is the Ethernet broadcast address.
var BroadcastMAC = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// Selector is the match part of a forwarding rule.
type Selector struct {
	EthType uint16     `json:"ethType,omitempty"`
	IPv4Dst *net.IPNet `json:"ipv4Dst,omitempty"`
}

// Treatment is the action part of a forwarding rule.
type Treatment struct {
	// EthDst is nil if the rule does not rewrite the destination MAC.
	EthDst net.HardwareAddr    `json:"ethDst,omitempty"`
	Output topology.PortNumber `json:"output,omitempty"`
}

// ForwardingRule is a single entry of a device's forwarding table.
type ForwardingRule struct {
	// ID is assigned by the rule store upon installation.
	ID        uint64            `json:"id"`
	Device    topology.DeviceID `json:"device"`
	Priority  int               `json:"priority"`
	Owner     string            `json:"owner"`
	Permanent bool              `json:"permanent"`
	Selector  Selector          `json:"selector"`
	Treatment Treatment         `json:"treatment"`
}

// MatchesIPv4Dst returns true if the rule matches exactly the given destination
// prefix (address and mask).
func (r *ForwardingRule) MatchesIPv4Dst(prefix *net.IPNet) bool {
	if r == nil || prefix == nil || r.Selector.IPv4Dst == nil {
		return false
	}
	return SamePrefix(r.Selector.IPv4Dst, prefix)
}

// RewriteMAC returns the destination MAC the rule rewrites to, or nil.
func (r *ForwardingRule) RewriteMAC() net.HardwareAddr {
	if r == nil || len(r.Treatment.EthDst) == 0 {
		return nil
	}
	return r.Treatment.EthDst
}

// String returns a short description of the rule.
func (r *ForwardingRule) String() string {
	if r == nil {
		return "<nil>"
	}
	var dst, mac string
	if r.Selector.IPv4Dst != nil {
		dst = r.Selector.IPv4Dst.String()
	}
	if r.RewriteMAC() != nil {
		mac = r.RewriteMAC().String()
	} else {
		mac = "<none>"
	}
	return fmt.Sprintf("<device: %s, dst: %s, eth-dst: %s, output: %d, priority: %d, owner: %s>",
		r.Device, dst, mac, r.Treatment.Output, r.Priority, r.Owner)
}

// SamePrefix compares two IP prefixes including the mask length.
func SamePrefix(a, b *net.IPNet) bool {
	if a == nil || b == nil {
		return a == b
	}
	aOnes, aBits := a.Mask.Size()
	bOnes, bBits := b.Mask.Size()
	if aOnes != bOnes || aBits != bBits {
		return false
	}
	return a.IP.Mask(a.Mask).Equal(b.IP.Mask(b.Mask))
}

// SameMAC compares two hardware addresses.
func SameMAC(a, b net.HardwareAddr) bool {
	return bytes.Equal(a, b)
}
