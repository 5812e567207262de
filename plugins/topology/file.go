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
	"strconv"
	"strings"

	"github.com/ghodss/yaml"
	"github.com/pkg/errors"

	"github.com/cobaal/fwdsync/plugins/topology/model"
)

// File is the (YAML or JSON) description of a static topology.
//
// Example:
//
//	devices:
//	  - id: of:0000000000000001
//	    ports:
//	      - number: 2
//	        mac: 00:00:00:00:01:02
//	links:
//	  - src: of:0000000000000001/2
//	    dst: of:0000000000000002/1
//	    bidirectional: true
type File struct {
	Devices []*DeviceSpec `json:"devices"`
	Links   []*LinkSpec   `json:"links"`
}

// DeviceSpec describes one device.
type DeviceSpec struct {
	ID          string      `json:"id"`
	Unavailable bool        `json:"unavailable,omitempty"`
	Ports       []*PortSpec `json:"ports,omitempty"`
}

// PortSpec describes one port of a device.
type PortSpec struct {
	Number      uint32            `json:"number"`
	MAC         string            `json:"mac,omitempty"`
	Annotations map[string]string `json:"annotations,omitempty"`
}

// LinkSpec describes a link between two "<device>/<port>" endpoints.
type LinkSpec struct {
	Src           string  `json:"src"`
	Dst           string  `json:"dst"`
	Cost          float64 `json:"cost,omitempty"`
	Bidirectional bool    `json:"bidirectional,omitempty"`
}

// ParseFile decodes topology description from YAML or JSON.
func ParseFile(data []byte) (*File, error) {
	file := &File{}
	if err := yaml.Unmarshal(data, file); err != nil {
		return nil, errors.Wrap(err, "failed to decode topology")
	}
	return file, nil
}

// build converts the file into devices and directional links.
func (f *File) build() (devices []*model.Device, links []*model.Link, err error) {
	known := make(map[model.DeviceID]bool)
	for _, spec := range f.Devices {
		if spec.ID == "" {
			return nil, nil, errors.New("device without ID")
		}
		id := model.DeviceID(spec.ID)
		if known[id] {
			return nil, nil, errors.Errorf("duplicate device %s", id)
		}
		known[id] = true

		device := &model.Device{ID: id, Available: !spec.Unavailable}
		for _, portSpec := range spec.Ports {
			port := &model.Port{
				Number:      model.PortNumber(portSpec.Number),
				Annotations: make(map[string]string),
			}
			for key, value := range portSpec.Annotations {
				port.Annotations[key] = value
			}
			if portSpec.MAC != "" {
				port.Annotations[PortMACAnnotation] = portSpec.MAC
			}
			device.Ports = append(device.Ports, port)
		}
		devices = append(devices, device)
	}

	for _, spec := range f.Links {
		src, err := parseConnectPoint(spec.Src)
		if err != nil {
			return nil, nil, err
		}
		dst, err := parseConnectPoint(spec.Dst)
		if err != nil {
			return nil, nil, err
		}
		for _, cp := range []model.ConnectPoint{src, dst} {
			if !known[cp.Device] {
				return nil, nil, errors.Errorf("link endpoint %s refers to unknown device", cp)
			}
		}
		cost := spec.Cost
		if cost == 0 {
			cost = model.DefaultLinkCost
		}
		links = append(links, &model.Link{Src: src, Dst: dst, Cost: cost})
		if spec.Bidirectional {
			links = append(links, &model.Link{Src: dst, Dst: src, Cost: cost})
		}
	}
	return devices, links, nil
}

// parseConnectPoint parses "<device>/<port>".
func parseConnectPoint(s string) (model.ConnectPoint, error) {
	idx := strings.LastIndex(s, "/")
	if idx <= 0 || idx == len(s)-1 {
		return model.ConnectPoint{}, errors.Errorf("invalid connect point %q, expected <device>/<port>", s)
	}
	port, err := strconv.ParseUint(s[idx+1:], 10, 32)
	if err != nil {
		return model.ConnectPoint{}, errors.Wrapf(err, "invalid port in connect point %q", s)
	}
	return model.ConnectPoint{
		Device: model.DeviceID(s[:idx]),
		Port:   model.PortNumber(port),
	}, nil
}
