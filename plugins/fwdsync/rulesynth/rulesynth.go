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

package rulesynth

import (
	"net"

	"github.com/pkg/errors"

	"github.com/cobaal/fwdsync/plugins/flowrule/model"
	topology "github.com/cobaal/fwdsync/plugins/topology/model"
)

const (
	// DefaultPriority is the priority of all synthesized rules.
	DefaultPriority = 10

	// DefaultLocalPort is the output port of rules for traffic destined
	// to the device itself.
	DefaultLocalPort topology.PortNumber = 1
)

// ErrMissingPortAddress is returned when the far end of a hop does not
// advertise a (valid) MAC address.
var ErrMissingPortAddress = errors.New("missing port MAC address")

// PortAnnotations provides port attributes of devices.
type PortAnnotations interface {
	GetPortAnnotation(device topology.DeviceID, port topology.PortNumber, key string) (value string, found bool)
}

// Synthesizer builds forwarding rules for paths.
type Synthesizer struct {
	Ports PortAnnotations

	Owner         string
	Priority      int
	LocalPort     topology.PortNumber
	MACAnnotation string
}

// ForPath returns one rule for every hop of the path that starts at the given
// device. Each rule matches the destination prefix, rewrites the destination
// MAC to the address of the far-end port and outputs via the egress port of the hop.
func (s *Synthesizer) ForPath(device topology.DeviceID, path *topology.Path, dstPrefix *net.IPNet) ([]*model.ForwardingRule, error) {
	if path == nil {
		return nil, nil
	}
	var rules []*model.ForwardingRule
	for _, hop := range path.Links {
		if hop.Src.Device != device {
			continue
		}
		annotation, found := s.Ports.GetPortAnnotation(hop.Dst.Device, hop.Dst.Port, s.MACAnnotation)
		if !found {
			return nil, errors.Wrapf(ErrMissingPortAddress, "port %s has no %s annotation",
				hop.Dst, s.MACAnnotation)
		}
		mac, err := net.ParseMAC(annotation)
		if err != nil {
			return nil, errors.Wrapf(ErrMissingPortAddress, "port %s: %v", hop.Dst, err)
		}
		rules = append(rules, s.newRule(device, dstPrefix, mac, hop.Src.Port))
	}
	return rules, nil
}

// Local returns the rule for traffic destined to the device itself.
func (s *Synthesizer) Local(device topology.DeviceID, dstPrefix *net.IPNet) *model.ForwardingRule {
	return s.newRule(device, dstPrefix, model.BroadcastMAC, s.LocalPort)
}

func (s *Synthesizer) newRule(device topology.DeviceID, dstPrefix *net.IPNet, mac net.HardwareAddr,
	output topology.PortNumber) *model.ForwardingRule {
	return &model.ForwardingRule{
		Device:    device,
		Priority:  s.Priority,
		Owner:     s.Owner,
		Permanent: true,
		Selector: model.Selector{
			EthType: model.EthTypeIPv4,
			IPv4Dst: dstPrefix,
		},
		Treatment: model.Treatment{
			EthDst: append(net.HardwareAddr{}, mac...),
			Output: output,
		},
	}
}
