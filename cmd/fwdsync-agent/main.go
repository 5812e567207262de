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

package main

import (
	"github.com/ligato/cn-infra/agent"
	"github.com/ligato/cn-infra/health/probe"
	"github.com/ligato/cn-infra/health/statuscheck"
	"github.com/ligato/cn-infra/logging/logrus"
	"github.com/ligato/cn-infra/rpc/prometheus"
	"github.com/ligato/cn-infra/rpc/rest"
	"github.com/ligato/cn-infra/servicelabel"

	"github.com/cobaal/fwdsync/plugins/controller"
	controllerapi "github.com/cobaal/fwdsync/plugins/controller/api"
	"github.com/cobaal/fwdsync/plugins/flowrule"
	"github.com/cobaal/fwdsync/plugins/fwdsync"
	"github.com/cobaal/fwdsync/plugins/topology"
)

// FwdSyncAgent keeps forwarding tables of devices converged with the topology.
type FwdSyncAgent struct {
	ServiceLabel servicelabel.ReaderAPI
	HTTP         *rest.Plugin
	Prometheus   *prometheus.Plugin
	StatusCheck  *statuscheck.Plugin
	HealthProbe  *probe.Plugin

	Topology   *topology.Plugin
	RuleStore  *flowrule.Plugin
	Controller *controller.Controller
	FwdSync    *fwdsync.Plugin
}

func (a *FwdSyncAgent) String() string {
	return "FwdSyncAgent"
}

// Init is called at startup phase. Method added in order to implement Plugin interface.
func (a *FwdSyncAgent) Init() error {
	return nil
}

// Close is called at cleanup phase. Method added in order to implement Plugin interface.
func (a *FwdSyncAgent) Close() error {
	return nil
}

func main() {
	fwdSyncPlugin := fwdsync.NewPlugin(fwdsync.UseDeps(func(deps *fwdsync.Deps) {
		deps.Topology = &topology.DefaultPlugin
		deps.Devices = &topology.DefaultPlugin
		deps.RuleStore = &flowrule.DefaultPlugin
	}))

	controllerPlugin := controller.NewPlugin(controller.UseDeps(func(deps *controller.Deps) {
		deps.StatusCheck = &statuscheck.DefaultPlugin
		deps.HTTPHandlers = &rest.DefaultPlugin
		deps.EventHandlers = []controllerapi.EventHandler{
			fwdSyncPlugin,
		}
	}))
	fwdSyncPlugin.EventLoop = controllerPlugin

	fwdSyncAgent := &FwdSyncAgent{
		ServiceLabel: &servicelabel.DefaultPlugin,
		HTTP:         &rest.DefaultPlugin,
		Prometheus:   &prometheus.DefaultPlugin,
		StatusCheck:  &statuscheck.DefaultPlugin,
		HealthProbe:  &probe.DefaultPlugin,
		Topology:     &topology.DefaultPlugin,
		RuleStore:    &flowrule.DefaultPlugin,
		Controller:   controllerPlugin,
		FwdSync:      fwdSyncPlugin,
	}

	a := agent.NewAgent(agent.AllPlugins(fwdSyncAgent))
	if err := a.Run(); err != nil {
		logrus.DefaultLogger().Fatal(err)
	}
}
