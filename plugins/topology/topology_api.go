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

package topology

import (
	"fmt"
	"sort"

	controller "github.com/cobaal/fwdsync/plugins/controller/api"
	"github.com/cobaal/fwdsync/plugins/topology/model"
)

// PortMACAnnotation is the port annotation key holding the MAC address
// advertised by the port.
const PortMACAnnotation = "portMac"

// API combines the topology and device directory services.
type API interface {
	TopologyAPI
	DeviceAPI
}

// TopologyAPI provides point-in-time views of the network topology
// and notifications about its changes.
type TopologyAPI interface {
	// CurrentTopology returns the latest topology snapshot.
	CurrentTopology() *Snapshot

	// GetPaths returns all simple paths from src to dst in the given snapshot.
	// The order of the returned paths carries no meaning.
	GetPaths(topo *Snapshot, src, dst model.DeviceID) ([]*model.Path, error)

	// Watch registers channel to receive a notification whenever the topology
	// changes. Notifications carry no guarantees beyond "something changed"
	// and are sent without blocking: if the channel is full, it already holds
	// an undelivered notification.
	Watch(subscriber string, changeCh chan<- *TopologyChange) (WatchRegistration, error)
}

// DeviceAPI is the directory of devices and their ports.
type DeviceAPI interface {
	// GetAvailableDevices returns all devices currently available.
	GetAvailableDevices() []*model.Device

	// GetPortAnnotation returns the value of the given annotation of a device port.
	GetPortAnnotation(device model.DeviceID, port model.PortNumber, key string) (value string, found bool)
}

// WatchRegistration is returned by Watch to allow to cancel the subscription.
type WatchRegistration interface {
	// Close stops the delivery of notifications.
	Close() error
}

// Snapshot is an immutable view of the topology. Links with an unknown
// or unavailable endpoint device are not part of the snapshot.
type Snapshot struct {
	Version uint64
	Devices map[model.DeviceID]*model.Device
	Links   []*model.Link

	allLinks  []*model.Link // including the filtered out ones
	adjacency map[model.DeviceID][]*model.Link
}

// NewSnapshot builds a topology snapshot.
func NewSnapshot(version uint64, devices []*model.Device, links []*model.Link) *Snapshot {
	s := &Snapshot{
		Version:   version,
		Devices:   make(map[model.DeviceID]*model.Device),
		allLinks:  links,
		adjacency: make(map[model.DeviceID][]*model.Link),
	}
	for _, device := range devices {
		s.Devices[device.ID] = device
	}
	for _, link := range links {
		if !s.isAvailable(link.Src.Device) || !s.isAvailable(link.Dst.Device) {
			continue
		}
		s.Links = append(s.Links, link)
		s.adjacency[link.Src.Device] = append(s.adjacency[link.Src.Device], link)
	}
	for _, adjacent := range s.adjacency {
		sort.Slice(adjacent, func(i, j int) bool {
			return adjacent[i].String() < adjacent[j].String()
		})
	}
	return s
}

func (s *Snapshot) isAvailable(device model.DeviceID) bool {
	d, known := s.Devices[device]
	return known && d.Available
}

// LinksFrom returns links leaving the given device, sorted by hop identity.
func (s *Snapshot) LinksFrom(device model.DeviceID) []*model.Link {
	if s == nil {
		return nil
	}
	return s.adjacency[device]
}

// AvailableDevices returns available devices sorted by ID.
func (s *Snapshot) AvailableDevices() []*model.Device {
	if s == nil {
		return nil
	}
	var devices []*model.Device
	for _, device := range s.Devices {
		if device.Available {
			devices = append(devices, device)
		}
	}
	sort.Slice(devices, func(i, j int) bool {
		return devices[i].ID < devices[j].ID
	})
	return devices
}

// Port returns the given port of a device, nil if not known.
func (s *Snapshot) Port(device model.DeviceID, port model.PortNumber) *model.Port {
	if s == nil {
		return nil
	}
	d, known := s.Devices[device]
	if !known {
		return nil
	}
	for _, p := range d.Ports {
		if p.Number == port {
			return p
		}
	}
	return nil
}

// TopologyChange is an Update event that represents any change in the topology.
type TopologyChange struct {
	Version uint64
	Reason  string
}

// GetName returns name of the TopologyChange event.
func (ev *TopologyChange) GetName() string {
	return "Topology Change"
}

// String describes TopologyChange event.
func (ev *TopologyChange) String() string {
	return fmt.Sprintf("%s\n"+
		"* version: %d\n"+
		"* reason: %s", ev.GetName(), ev.Version, ev.Reason)
}

// Method is Update.
func (ev *TopologyChange) Method() controller.EventMethodType {
	return controller.Update
}

// IsBlocking returns false.
func (ev *TopologyChange) IsBlocking() bool {
	return false
}

// Done is NOOP.
func (ev *TopologyChange) Done(error) {
	return
}

// CoalesceKey is the same for all topology changes.
func (ev *TopologyChange) CoalesceKey() string {
	return ev.GetName()
}
