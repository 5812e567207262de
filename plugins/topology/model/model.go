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
	"fmt"
	"strings"
)

// DefaultLinkCost is used for links without explicitly configured cost.
const DefaultLinkCost = 1

// DeviceID uniquely identifies a forwarding device, e.g. "of:0000000000000002".
type DeviceID string

// PortNumber identifies a port of a device.
type PortNumber uint32

// ConnectPoint is a (device, port) endpoint of a link.
type ConnectPoint struct {
	Device DeviceID   `json:"device"`
	Port   PortNumber `json:"port"`
}

// String returns "<device>/<port>".
func (cp ConnectPoint) String() string {
	return fmt.Sprintf("%s/%d", cp.Device, cp.Port)
}

// Link is a directional connection between two connect points.
type Link struct {
	Src  ConnectPoint `json:"src"`
	Dst  ConnectPoint `json:"dst"`
	Cost float64      `json:"cost"`
}

// String returns "<src>-><dst>", which doubles as the identity of the hop.
func (l *Link) String() string {
	if l == nil {
		return "<nil>"
	}
	return l.Src.String() + "->" + l.Dst.String()
}

// Port is a single port of a device with its advertised annotations.
type Port struct {
	Number      PortNumber        `json:"number"`
	Annotations map[string]string `json:"annotations,omitempty"`
}

// Device is a forwarding device known to the topology.
type Device struct {
	ID        DeviceID `json:"id"`
	Available bool     `json:"available"`
	Ports     []*Port  `json:"ports,omitempty"`
}

// String returns the device ID.
func (d *Device) String() string {
	if d == nil {
		return "<nil>"
	}
	return string(d.ID)
}

// Path is an ordered sequence of links connecting two devices.
type Path struct {
	Links []*Link `json:"links"`
	Cost  float64 `json:"cost"`
}

// NewPath builds a path from the given links with the cost equal to the sum
// of link costs.
func NewPath(links ...*Link) *Path {
	p := &Path{Links: links}
	for _, link := range links {
		p.Cost += link.Cost
	}
	return p
}

// Src returns the device where the path starts.
func (p *Path) Src() DeviceID {
	if p == nil || len(p.Links) == 0 {
		return ""
	}
	return p.Links[0].Src.Device
}

// Dst returns the device where the path ends.
func (p *Path) Dst() DeviceID {
	if p == nil || len(p.Links) == 0 {
		return ""
	}
	return p.Links[len(p.Links)-1].Dst.Device
}

// HopKeys returns the identities of all hops in the path order.
func (p *Path) HopKeys() []string {
	if p == nil {
		return nil
	}
	keys := make([]string, 0, len(p.Links))
	for _, link := range p.Links {
		keys = append(keys, link.String())
	}
	return keys
}

// String returns a human-readable representation of the path.
func (p *Path) String() string {
	if p == nil {
		return "<nil>"
	}
	return fmt.Sprintf("[%s] (cost: %v)", strings.Join(p.HopKeys(), ", "), p.Cost)
}
