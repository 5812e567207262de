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
	"net/http"

	"github.com/unrolled/render"

	"github.com/cobaal/fwdsync/plugins/topology/model"
)

// TopologyURL is used to read (GET) or replace (PUT) the topology.
const TopologyURL = "/topology"

type errorString struct {
	Error string
}

// Dump is the REST representation of a snapshot.
type Dump struct {
	Version uint64          `json:"version"`
	Devices []*model.Device `json:"devices"`
	Links   []*model.Link   `json:"links"`
}

func (p *Plugin) registerHandlers() {
	if p.HTTPHandlers == nil {
		p.Log.Warn("No http handler provided, skipping registration of topology REST handlers")
		return
	}
	p.HTTPHandlers.RegisterHTTPHandler(TopologyURL, p.topologyGetHandler, "GET")
	p.HTTPHandlers.RegisterHTTPHandler(TopologyURL, p.topologyPutHandler, "PUT")
}

func (p *Plugin) topologyGetHandler(formatter *render.Render) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		snapshot := p.CurrentTopology()
		var devices []*model.Device
		for _, device := range snapshot.Devices {
			devices = append(devices, device)
		}
		formatter.JSON(w, http.StatusOK, &Dump{
			Version: snapshot.Version,
			Devices: devices,
			Links:   snapshot.Links,
		})
	}
}

func (p *Plugin) topologyPutHandler(formatter *render.Render) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		body, err := ioutil.ReadAll(req.Body)
		if err != nil {
			formatter.JSON(w, http.StatusInternalServerError, errorString{err.Error()})
			return
		}
		if err := p.LoadTopology(body); err != nil {
			formatter.JSON(w, http.StatusBadRequest, errorString{err.Error()})
			return
		}
		formatter.JSON(w, http.StatusOK, p.CurrentTopology().Version)
	}
}
