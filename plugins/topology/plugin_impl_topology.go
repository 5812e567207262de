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
	"io/ioutil"
	"sync"

	"github.com/ligato/cn-infra/infra"
	"github.com/ligato/cn-infra/rpc/rest"
	"github.com/pkg/errors"

	"github.com/cobaal/fwdsync/plugins/topology/model"
)

// Plugin is a static topology provider. The topology is loaded from a file
// and can be replaced at run-time via SetTopology or the REST API. Every change
// bumps the snapshot version and notifies all watchers.
type Plugin struct {
	Deps

	config *Config

	sync.RWMutex
	snapshot *Snapshot
	watchers map[string]chan<- *TopologyChange
}

// Deps lists dependencies of the topology plugin.
type Deps struct {
	infra.PluginDeps

	HTTPHandlers rest.HTTPHandlers // optional
}

// Config holds the topology plugin configuration.
type Config struct {
	// TopologyFile is the path to the YAML/JSON topology description.
	TopologyFile string `json:"topology-file"`

	// MaxPathHops limits the length of enumerated paths (0 = unlimited).
	MaxPathHops int `json:"max-path-hops"`
}

type watchRegistration struct {
	plugin     *Plugin
	subscriber string
}

// Init loads the configuration and the initial topology.
func (p *Plugin) Init() error {
	p.watchers = make(map[string]chan<- *TopologyChange)
	p.snapshot = NewSnapshot(0, nil, nil)

	p.config = &Config{}
	if p.Cfg != nil {
		found, err := p.Cfg.LoadValue(p.config)
		if err != nil {
			return err
		}
		if !found {
			p.Log.Debugf("%v config not found", p.PluginName)
		}
	}
	p.Log.Infof("Topology configuration: %+v", *p.config)

	if p.config.TopologyFile != "" {
		data, err := ioutil.ReadFile(p.config.TopologyFile)
		if err != nil {
			return errors.Wrapf(err, "failed to read topology file %s", p.config.TopologyFile)
		}
		if err := p.LoadTopology(data); err != nil {
			return err
		}
	}

	p.registerHandlers()
	return nil
}

// LoadTopology replaces the topology with the one described by the given
// YAML or JSON data.
func (p *Plugin) LoadTopology(data []byte) error {
	file, err := ParseFile(data)
	if err != nil {
		return err
	}
	return p.SetTopology(file)
}

// SetTopology replaces the current topology.
func (p *Plugin) SetTopology(file *File) error {
	devices, links, err := file.build()
	if err != nil {
		return errors.Wrap(err, "invalid topology")
	}

	p.Lock()
	p.snapshot = NewSnapshot(p.snapshot.Version+1, devices, links)
	version := p.snapshot.Version
	p.Unlock()

	p.Log.Infof("Topology replaced (version %d): %d devices, %d links",
		version, len(devices), len(links))
	p.notify(&TopologyChange{Version: version, Reason: "topology replaced"})
	return nil
}

// SetDeviceAvailability marks device as (un)available.
func (p *Plugin) SetDeviceAvailability(id model.DeviceID, available bool) error {
	p.Lock()
	current := p.snapshot
	if _, known := current.Devices[id]; !known {
		p.Unlock()
		return errors.Errorf("unknown device %s", id)
	}
	var devices []*model.Device
	for _, device := range current.Devices {
		if device.ID == id {
			device = &model.Device{ID: device.ID, Available: available, Ports: device.Ports}
		}
		devices = append(devices, device)
	}
	p.snapshot = NewSnapshot(current.Version+1, devices, current.allLinks)
	version := p.snapshot.Version
	p.Unlock()

	p.notify(&TopologyChange{
		Version: version,
		Reason:  "device " + string(id) + " " + availabilityStr(available),
	})
	return nil
}

func availabilityStr(available bool) string {
	if available {
		return "became available"
	}
	return "became unavailable"
}

// CurrentTopology returns the latest topology snapshot.
func (p *Plugin) CurrentTopology() *Snapshot {
	p.RLock()
	defer p.RUnlock()
	return p.snapshot
}

// GetPaths returns all simple paths from src to dst.
func (p *Plugin) GetPaths(topo *Snapshot, src, dst model.DeviceID) ([]*model.Path, error) {
	if topo == nil {
		return nil, errors.New("no topology snapshot")
	}
	return EnumeratePaths(topo, src, dst, p.config.MaxPathHops), nil
}

// GetAvailableDevices returns all devices currently available.
func (p *Plugin) GetAvailableDevices() []*model.Device {
	return p.CurrentTopology().AvailableDevices()
}

// GetPortAnnotation returns the value of the given annotation of a device port.
func (p *Plugin) GetPortAnnotation(device model.DeviceID, port model.PortNumber, key string) (string, bool) {
	pt := p.CurrentTopology().Port(device, port)
	if pt == nil {
		return "", false
	}
	value, found := pt.Annotations[key]
	return value, found
}

// Watch registers channel for topology change notifications.
func (p *Plugin) Watch(subscriber string, changeCh chan<- *TopologyChange) (WatchRegistration, error) {
	p.Lock()
	defer p.Unlock()
	if _, exists := p.watchers[subscriber]; exists {
		return nil, errors.Errorf("subscriber %s is already watching", subscriber)
	}
	p.watchers[subscriber] = changeCh
	return &watchRegistration{plugin: p, subscriber: subscriber}, nil
}

// Close removes the subscription.
func (wr *watchRegistration) Close() error {
	wr.plugin.Lock()
	defer wr.plugin.Unlock()
	delete(wr.plugin.watchers, wr.subscriber)
	return nil
}

// notify sends the change to all watchers without blocking.
func (p *Plugin) notify(change *TopologyChange) {
	p.RLock()
	defer p.RUnlock()
	for subscriber, ch := range p.watchers {
		select {
		case ch <- change:
		default:
			p.Log.Debugf("Watcher %s already has a pending notification", subscriber)
		}
	}
}

// Close drops all watchers.
func (p *Plugin) Close() error {
	p.Lock()
	defer p.Unlock()
	p.watchers = make(map[string]chan<- *TopologyChange)
	return nil
}
