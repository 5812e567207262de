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
	"sort"
	"sync"

	"github.com/ligato/cn-infra/infra"
	prometheusplugin "github.com/ligato/cn-infra/rpc/prometheus"
	"github.com/ligato/cn-infra/rpc/rest"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cobaal/fwdsync/plugins/flowrule/model"
	topology "github.com/cobaal/fwdsync/plugins/topology/model"
)

const (
	// path where the rule store metrics are exposed
	prometheusStatsPath = "/flowrules/metrics"

	deviceLabel          = "device"
	installedRulesMetric = "installedRules"
)

// Plugin is an in-memory rule store keeping one forwarding table per device.
type Plugin struct {
	Deps

	sync.Mutex
	lastID uint64
	tables map[topology.DeviceID][]*model.ForwardingRule

	installedRules *prometheus.GaugeVec
}

// Deps lists dependencies of the rule store.
type Deps struct {
	infra.PluginDeps

	HTTPHandlers rest.HTTPHandlers    // optional
	Prometheus   prometheusplugin.API // optional
}

// Init prepares empty tables and registers metrics and REST handlers.
func (p *Plugin) Init() error {
	p.tables = make(map[topology.DeviceID][]*model.ForwardingRule)

	if p.Prometheus != nil {
		err := p.Prometheus.NewRegistry(prometheusStatsPath,
			promhttp.HandlerOpts{ErrorHandling: promhttp.ContinueOnError, ErrorLog: p.Log})
		if err != nil {
			return err
		}
		p.installedRules = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: installedRulesMetric,
			Help: "Number of rules installed on device",
		}, []string{deviceLabel})
		if err := p.Prometheus.Register(prometheusStatsPath, p.installedRules); err != nil {
			p.Log.Errorf("failed to register %v metric %v", installedRulesMetric, err)
			return err
		}
	}

	p.registerHandlers()
	return nil
}

// GetRules returns copies of all rules installed on the device, ordered by ID.
func (p *Plugin) GetRules(device topology.DeviceID) ([]*model.ForwardingRule, error) {
	p.Lock()
	defer p.Unlock()

	var rules []*model.ForwardingRule
	for _, rule := range p.tables[device] {
		rules = append(rules, copyRule(rule))
	}
	return rules, nil
}

// InstallRule installs the rule and assigns it an ID.
func (p *Plugin) InstallRule(rule *model.ForwardingRule) error {
	if rule == nil || rule.Device == "" {
		return errors.New("rule without device")
	}

	p.Lock()
	defer p.Unlock()

	p.lastID++
	rule.ID = p.lastID
	installed := copyRule(rule)

	table := p.tables[rule.Device]
	for i, existing := range table {
		if existing.Priority == rule.Priority && sameSelector(existing.Selector, rule.Selector) {
			p.Log.Debugf("Rule %d on %s overwritten by %v", existing.ID, rule.Device, rule)
			table[i] = installed
			return nil
		}
	}
	p.tables[rule.Device] = append(table, installed)
	p.updateGauge(rule.Device)
	return nil
}

// RemoveRule removes the rule identified by its ID or, with zero ID,
// by its content. Removal of a rule that is not installed is a no-op.
func (p *Plugin) RemoveRule(rule *model.ForwardingRule) error {
	if rule == nil {
		return errors.New("nil rule")
	}

	p.Lock()
	defer p.Unlock()

	table := p.tables[rule.Device]
	for i, existing := range table {
		if (rule.ID != 0 && existing.ID == rule.ID) ||
			(rule.ID == 0 && sameRule(existing, rule)) {
			p.tables[rule.Device] = append(table[:i:i], table[i+1:]...)
			p.updateGauge(rule.Device)
			return nil
		}
	}
	p.Log.Debugf("Rule %v is not installed, nothing to remove", rule)
	return nil
}

// RemoveRulesByOwner removes all rules of the owner from all devices.
func (p *Plugin) RemoveRulesByOwner(owner string) error {
	p.Lock()
	defer p.Unlock()

	var removed int
	for device, table := range p.tables {
		var kept []*model.ForwardingRule
		for _, rule := range table {
			if rule.Owner == owner {
				removed++
				continue
			}
			kept = append(kept, rule)
		}
		p.tables[device] = kept
		p.updateGauge(device)
	}
	p.Log.Infof("Removed %d rules owned by %s", removed, owner)
	return nil
}

// dump returns copies of all tables, optionally only for one device.
func (p *Plugin) dump(device topology.DeviceID) Tables {
	p.Lock()
	defer p.Unlock()

	tables := make(Tables)
	for id, table := range p.tables {
		if device != "" && id != device {
			continue
		}
		rules := make([]*model.ForwardingRule, 0, len(table))
		for _, rule := range table {
			rules = append(rules, copyRule(rule))
		}
		sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
		tables[id] = rules
	}
	return tables
}

// updateGauge must be called with the lock held.
func (p *Plugin) updateGauge(device topology.DeviceID) {
	if p.installedRules == nil {
		return
	}
	p.installedRules.WithLabelValues(string(device)).Set(float64(len(p.tables[device])))
}

// Close does nothing.
func (p *Plugin) Close() error {
	return nil
}

func copyRule(rule *model.ForwardingRule) *model.ForwardingRule {
	c := *rule
	if rule.Selector.IPv4Dst != nil {
		ipNet := *rule.Selector.IPv4Dst
		c.Selector.IPv4Dst = &ipNet
	}
	if rule.Treatment.EthDst != nil {
		c.Treatment.EthDst = append([]byte{}, rule.Treatment.EthDst...)
	}
	return &c
}

func sameSelector(a, b model.Selector) bool {
	return a.EthType == b.EthType && model.SamePrefix(a.IPv4Dst, b.IPv4Dst)
}

func sameRule(a, b *model.ForwardingRule) bool {
	return a.Device == b.Device && a.Priority == b.Priority && a.Owner == b.Owner &&
		sameSelector(a.Selector, b.Selector) &&
		model.SameMAC(a.Treatment.EthDst, b.Treatment.EthDst) &&
		a.Treatment.Output == b.Treatment.Output
}
