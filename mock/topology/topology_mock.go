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
	"sync"

	"github.com/pkg/errors"

	"github.com/cobaal/fwdsync/plugins/topology"
	"github.com/cobaal/fwdsync/plugins/topology/model"
)

// MockTopology is a mock implementation of the topology plugin.
type MockTopology struct {
	sync.Mutex

	snapshot     *topology.Snapshot
	watchers     map[string]chan<- *topology.TopologyChange
	reversePaths bool
}

type watchRegistration struct {
	mock       *MockTopology
	subscriber string
}

// NewMockTopology is a constructor for MockTopology.
func NewMockTopology() *MockTopology {
	return &MockTopology{
		snapshot: topology.NewSnapshot(0, nil, nil),
		watchers: make(map[string]chan<- *topology.TopologyChange),
	}
}

// SetTopology replaces the topology and notifies watchers.
func (m *MockTopology) SetTopology(devices []*model.Device, links []*model.Link) {
	m.Lock()
	m.snapshot = topology.NewSnapshot(m.snapshot.Version+1, devices, links)
	change := &topology.TopologyChange{Version: m.snapshot.Version, Reason: "mock"}
	watchers := make([]chan<- *topology.TopologyChange, 0, len(m.watchers))
	for _, ch := range m.watchers {
		watchers = append(watchers, ch)
	}
	m.Unlock()

	for _, ch := range watchers {
		select {
		case ch <- change:
		default:
		}
	}
}

// ReversePaths makes GetPaths return paths in the reverse order.
func (m *MockTopology) ReversePaths(reverse bool) {
	m.Lock()
	defer m.Unlock()
	m.reversePaths = reverse
}

// WatcherCount returns the number of registered watchers.
func (m *MockTopology) WatcherCount() int {
	m.Lock()
	defer m.Unlock()
	return len(m.watchers)
}

// CurrentTopology returns the topology set via SetTopology.
func (m *MockTopology) CurrentTopology() *topology.Snapshot {
	m.Lock()
	defer m.Unlock()
	return m.snapshot
}

// GetPaths enumerates all simple paths.
func (m *MockTopology) GetPaths(topo *topology.Snapshot, src, dst model.DeviceID) ([]*model.Path, error) {
	m.Lock()
	reverse := m.reversePaths
	m.Unlock()

	paths := topology.EnumeratePaths(topo, src, dst, 0)
	if reverse {
		for i, j := 0, len(paths)-1; i < j; i, j = i+1, j-1 {
			paths[i], paths[j] = paths[j], paths[i]
		}
	}
	return paths, nil
}

// GetAvailableDevices returns available devices of the current topology.
func (m *MockTopology) GetAvailableDevices() []*model.Device {
	return m.CurrentTopology().AvailableDevices()
}

// GetPortAnnotation returns port annotation from the current topology.
func (m *MockTopology) GetPortAnnotation(device model.DeviceID, port model.PortNumber, key string) (string, bool) {
	p := m.CurrentTopology().Port(device, port)
	if p == nil {
		return "", false
	}
	value, found := p.Annotations[key]
	return value, found
}

// Watch registers the channel for notifications.
func (m *MockTopology) Watch(subscriber string, changeCh chan<- *topology.TopologyChange) (topology.WatchRegistration, error) {
	m.Lock()
	defer m.Unlock()
	if _, exists := m.watchers[subscriber]; exists {
		return nil, errors.Errorf("duplicate subscriber %s", subscriber)
	}
	m.watchers[subscriber] = changeCh
	return &watchRegistration{mock: m, subscriber: subscriber}, nil
}

// Close removes the watcher.
func (wr *watchRegistration) Close() error {
	wr.mock.Lock()
	defer wr.mock.Unlock()
	delete(wr.mock.watchers, wr.subscriber)
	return nil
}
