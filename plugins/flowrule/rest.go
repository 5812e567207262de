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

package flowrule

import (
	"net/http"

	"github.com/unrolled/render"

	"github.com/cobaal/fwdsync/plugins/flowrule/model"
	topology "github.com/cobaal/fwdsync/plugins/topology/model"
)

const (
	// FlowRulesURL is the URL used to dump installed rules.
	FlowRulesURL = "/flowrules"

	// deviceArg allows to select a single device.
	deviceArg = "device"
)

type errorString struct {
	Error string
}

func (p *Plugin) registerHandlers() {
	if p.HTTPHandlers == nil {
		p.Log.Warn("No http handler provided, skipping registration of flow rule REST handlers")
		return
	}
	p.HTTPHandlers.RegisterHTTPHandler(FlowRulesURL, p.flowRulesGetHandler, "GET")
}

func (p *Plugin) flowRulesGetHandler(formatter *render.Render) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		device := topology.DeviceID(req.URL.Query().Get(deviceArg))
		tables := p.dump(device)
		if device != "" && len(tables) == 0 {
			formatter.JSON(w, http.StatusNotFound, errorString{"no rules installed on " + string(device)})
			return
		}
		formatter.JSON(w, http.StatusOK, tables)
	}
}

// Tables is the REST representation of installed rules, indexed by device.
type Tables map[topology.DeviceID][]*model.ForwardingRule
