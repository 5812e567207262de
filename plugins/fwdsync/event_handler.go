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
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"

	controller "github.com/cobaal/fwdsync/plugins/controller/api"
	"github.com/cobaal/fwdsync/plugins/topology"
)

// HandlesEvent selects resyncs, topology changes and own Shutdown.
func (p *Plugin) HandlesEvent(event controller.Event) bool {
	if event.Method() == controller.Resync {
		return true
	}
	switch ev := event.(type) {
	case *topology.TopologyChange:
		return true
	case *controller.Shutdown:
		return ev.Requester == string(p.PluginName)
	}
	return false
}

// Resync runs a full reconciliation pass.
func (p *Plugin) Resync(event controller.Event, resyncCount int) error {
	if p.shutdown {
		return nil
	}
	trigger := HealingTrigger
	if _, isStartup := event.(*controller.StartupResync); isStartup {
		trigger = StartupTrigger
	}
	return p.runPass(trigger)
}

// Update runs a full reconciliation pass for a topology change or removes
// all owned rules on Shutdown.
func (p *Plugin) Update(event controller.Event) (changeDescription string, err error) {
	switch event.(type) {
	case *controller.Shutdown:
		p.shutdown = true
		if err = p.removeOwnedRules(); err != nil {
			return "", err
		}
		return fmt.Sprintf("removed rules owned by %s", p.config.AppName), nil

	case *topology.TopologyChange:
		if p.shutdown {
			return "", nil
		}
		if p.config.SkipUnchangedTopology && p.lastCleanPass != "" &&
			p.lastCleanPass == p.passKey(p.Topology.CurrentTopology()) {
			return "topology unchanged, pass skipped", nil
		}
		err = p.runPass(TopologyChangeTrigger)
		if report := p.LastRunReport(); report != nil {
			changeDescription = report.String()
		}
		return changeDescription, err
	}
	return "", nil
}

// runPass runs a full reconciliation pass over the current topology.
// Failed pairs are reported as a single (non-fatal) error.
func (p *Plugin) runPass(trigger Trigger) error {
	snapshot := p.Topology.CurrentTopology()
	devices := p.Devices.GetAvailableDevices()

	report := p.RunFullReconciliation(snapshot, devices)
	report.Trigger = trigger
	p.observePass(report)

	p.reportLock.Lock()
	p.lastReport = report
	p.reportLock.Unlock()

	if report.Failed > 0 {
		p.lastCleanPass = ""
		var failed []string
		for _, pair := range report.Failures() {
			failed = append(failed, fmt.Sprintf("%s->%s (%s)", pair.Src, pair.Dst, pair.Reason))
		}
		return errors.Errorf("%d of %d device pairs failed to reconcile: %s",
			report.Failed, len(report.Pairs), strings.Join(failed, ", "))
	}
	p.lastCleanPass = p.passKey(snapshot)
	return nil
}

// passKey identifies the input of a pass: topology version and the set
// of available devices.
func (p *Plugin) passKey(snapshot *topology.Snapshot) string {
	var ids []string
	for _, device := range p.Devices.GetAvailableDevices() {
		ids = append(ids, string(device.ID))
	}
	sort.Strings(ids)
	var version uint64
	if snapshot != nil {
		version = snapshot.Version
	}
	return fmt.Sprintf("%d:%s", version, strings.Join(ids, ","))
}
