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

package fwdsync

import (
	"net/http"

	"github.com/unrolled/render"
)

// LastRunURL is the URL of the report of the last reconciliation pass.
const LastRunURL = "/fwdsync/last-run"

type errorString struct {
	Error string
}

func (p *Plugin) registerHandlers() {
	if p.HTTPHandlers == nil {
		p.Log.Warn("No http handler provided, skipping registration of fwdsync REST handlers")
		return
	}
	p.HTTPHandlers.RegisterHTTPHandler(LastRunURL, p.lastRunGetHandler, "GET")
}

func (p *Plugin) lastRunGetHandler(formatter *render.Render) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		report := p.LastRunReport()
		if report == nil {
			formatter.JSON(w, http.StatusNotFound, errorString{"no reconciliation pass has run yet"})
			return
		}
		formatter.JSON(w, http.StatusOK, report)
	}
}
