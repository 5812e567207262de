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
	"sort"
	"time"

	"github.com/cobaal/fwdsync/plugins/flowrule/model"
	"github.com/cobaal/fwdsync/plugins/topology"
	topomodel "github.com/cobaal/fwdsync/plugins/topology/model"
)

// RunFullReconciliation reconciles forwarding rules of every ordered pair
// of the given devices (self pairs included). Pairs are processed in the order
// of device IDs. A failed pair is recorded in the report and does not stop
// the pass.
func (p *Plugin) RunFullReconciliation(snapshot *topology.Snapshot, devices []*topomodel.Device) *RunReport {
	report := &RunReport{Start: time.Now()}
	if snapshot != nil {
		report.TopologyVersion = snapshot.Version
	}

	ids := make([]topomodel.DeviceID, 0, len(devices))
	for _, device := range devices {
		ids = append(ids, device.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	report.Devices = ids

	for _, src := range ids {
		for _, dst := range ids {
			pair := p.reconcilePair(snapshot, src, dst)
			report.Pairs = append(report.Pairs, pair)
			report.Installed += pair.Installed
			report.Removed += pair.Removed
			if pair.Reason != "" {
				report.Failed++
				p.Log.Warnf("Failed to reconcile %s->%s: %s", src, dst, pair.Error)
			}
		}
	}

	report.End = time.Now()
	p.Log.Infof("Reconciliation pass finished: %v", report)
	return report
}

// reconcilePair installs rules on src for traffic destined to dst.
func (p *Plugin) reconcilePair(snapshot *topology.Snapshot, src, dst topomodel.DeviceID) *PairReport {
	pair := &PairReport{Src: src, Dst: dst}
	fail := func(err error) *PairReport {
		pair.Reason = classifyError(err)
		pair.Error = err.Error()
		return pair
	}

	dstPrefix, err := p.mapper.PrefixFor(dst)
	if err != nil {
		return fail(err)
	}

	var rules []*model.ForwardingRule
	if src == dst {
		pair.Path = localPath
		rules = append(rules, p.synth.Local(src, dstPrefix))
	} else {
		path, err := p.selector.SelectPath(snapshot, src, dst)
		if err != nil {
			return fail(err)
		}
		pair.Path = path.String()
		rules, err = p.synth.ForPath(src, path, dstPrefix)
		if err != nil {
			return fail(err)
		}
	}

	for _, rule := range rules {
		res, err := p.reconciler.Reconcile(rule)
		pair.Installed += res.Installed
		pair.Removed += res.Removed
		if err != nil {
			return fail(err)
		}
	}
	return pair
}
