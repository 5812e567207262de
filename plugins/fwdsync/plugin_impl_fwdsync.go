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
	"context"
	"sync"
	"time"

	"github.com/ligato/cn-infra/infra"
	prometheusplugin "github.com/ligato/cn-infra/rpc/prometheus"
	"github.com/ligato/cn-infra/rpc/rest"
	"github.com/ligato/cn-infra/servicelabel"
	"github.com/pkg/errors"

	controller "github.com/cobaal/fwdsync/plugins/controller/api"
	"github.com/cobaal/fwdsync/plugins/flowrule"
	"github.com/cobaal/fwdsync/plugins/fwdsync/addrmap"
	"github.com/cobaal/fwdsync/plugins/fwdsync/pathsel"
	"github.com/cobaal/fwdsync/plugins/fwdsync/reconciler"
	"github.com/cobaal/fwdsync/plugins/fwdsync/rulesynth"
	"github.com/cobaal/fwdsync/plugins/topology"
	"github.com/cobaal/fwdsync/plugins/topology/model"
)

const (
	defaultAppName = "org.cobaal.app"

	// how long Close waits for the event loop to process the Shutdown event
	shutdownTimeout = 10 * time.Second
)

// Plugin keeps forwarding tables of all devices converged with the topology:
// every available device gets, for every other reachable device, a rule
// forwarding traffic for the destination address along the selected path,
// plus a local rule for its own address.
//
// Reconciliation passes are run from within the controller event loop
// (Plugin is an event handler), one at a time. Each pass recomputes all
// device pairs from the current topology snapshot.
type Plugin struct {
	Deps

	config *Config

	mapper     *addrmap.Mapper
	selector   *pathsel.Selector
	synth      *rulesynth.Synthesizer
	reconciler *reconciler.Reconciler
	metrics    *metrics

	changeCh chan *topology.TopologyChange
	watchReg topology.WatchRegistration
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	// accessed only from within the event loop
	lastCleanPass string // key of the last pass without failures
	shutdown      bool

	reportLock sync.Mutex
	lastReport *RunReport
}

// Deps lists dependencies of the plugin.
type Deps struct {
	infra.PluginDeps

	ServiceLabel servicelabel.ReaderAPI
	Topology     topology.TopologyAPI
	Devices      topology.DeviceAPI
	RuleStore    flowrule.API
	EventLoop    controller.EventLoop
	HTTPHandlers rest.HTTPHandlers    // optional
	Prometheus   prometheusplugin.API // optional
}

// Config holds the plugin configuration.
type Config struct {
	// AppName identifies rules owned by this application.
	AppName string `json:"app-name"`

	// BaseSubnet is the IPv4 subnet device addresses are derived from.
	BaseSubnet string `json:"base-subnet"`

	// RulePriority is the priority of all installed rules.
	RulePriority int `json:"rule-priority"`

	// LocalPort is the output port of the rules matching device's own address.
	LocalPort uint32 `json:"local-port"`

	// PortMACAnnotation is the port annotation holding the port MAC address.
	PortMACAnnotation string `json:"port-mac-annotation"`

	// SkipUnchangedTopology enables skipping of topology change events
	// that carry the same topology version and device set as the last
	// pass completed without failures.
	SkipUnchangedTopology bool `json:"skip-unchanged-topology"`
}

// Init builds the reconciliation pipeline and subscribes to topology changes.
// The first pass is run by the startup resync of the event loop.
func (p *Plugin) Init() (err error) {
	p.config = &Config{
		AppName:           defaultAppName,
		BaseSubnet:        addrmap.DefaultBaseSubnet,
		RulePriority:      rulesynth.DefaultPriority,
		LocalPort:         uint32(rulesynth.DefaultLocalPort),
		PortMACAnnotation: topology.PortMACAnnotation,
	}
	if err = p.loadConfig(p.config); err != nil {
		return err
	}
	p.Log.Infof("Fwdsync configuration: %+v", *p.config)

	p.mapper, err = addrmap.NewMapper(p.config.BaseSubnet)
	if err != nil {
		return err
	}
	p.selector = &pathsel.Selector{Paths: p.Topology}
	p.synth = &rulesynth.Synthesizer{
		Ports:         p.Devices,
		Owner:         p.config.AppName,
		Priority:      p.config.RulePriority,
		LocalPort:     model.PortNumber(p.config.LocalPort),
		MACAnnotation: p.config.PortMACAnnotation,
	}
	p.reconciler = &reconciler.Reconciler{
		Log:   p.Log.NewLogger("-reconciler"),
		Rules: p.RuleStore,
	}

	if err = p.registerMetrics(); err != nil {
		return err
	}
	p.registerHandlers()

	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.changeCh = make(chan *topology.TopologyChange, 1)
	p.watchReg, err = p.Topology.Watch(string(p.PluginName), p.changeCh)
	if err != nil {
		return errors.Wrap(err, "failed to watch topology changes")
	}
	p.wg.Add(1)
	go p.forwardTopologyChanges()
	return nil
}

// forwardTopologyChanges passes topology change notifications into the event loop.
func (p *Plugin) forwardTopologyChanges() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case change := <-p.changeCh:
			if err := p.EventLoop.PushEvent(change); err != nil {
				p.Log.Warnf("Failed to push topology change (version %d): %v", change.Version, err)
			}
		}
	}
}

// LastRunReport returns the report of the last reconciliation pass
// (nil if no pass has run yet).
func (p *Plugin) LastRunReport() *RunReport {
	p.reportLock.Lock()
	defer p.reportLock.Unlock()
	return p.lastReport
}

// Close cancels the topology subscription and removes all rules installed
// by this application. The removal is serialized with reconciliation passes
// through the event loop, unless the loop is no longer running.
func (p *Plugin) Close() error {
	if p.watchReg != nil {
		if err := p.watchReg.Close(); err != nil {
			p.Log.Warnf("Failed to cancel topology watch: %v", err)
		}
	}
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()

	if p.RuleStore == nil || p.config == nil {
		return nil
	}

	shutdown := controller.NewShutdownEvent()
	shutdown.Requester = string(p.PluginName)
	err := p.EventLoop.PushEvent(shutdown)
	if err == nil {
		err = shutdown.WaitTimeout(shutdownTimeout)
	}
	if err != nil {
		p.Log.Warnf("Shutdown via event loop failed (%v), removing rules directly", err)
		return p.removeOwnedRules()
	}
	return nil
}

// removeOwnedRules removes all rules of this application from all devices.
func (p *Plugin) removeOwnedRules() error {
	err := p.RuleStore.RemoveRulesByOwner(p.config.AppName)
	if err != nil {
		return errors.Wrapf(err, "failed to remove rules owned by %s", p.config.AppName)
	}
	p.Log.Infof("Removed all rules owned by %s", p.config.AppName)
	return nil
}

// loadConfig loads configuration file.
func (p *Plugin) loadConfig(config *Config) error {
	if p.Cfg == nil {
		return nil
	}
	found, err := p.Cfg.LoadValue(config)
	if err != nil {
		return err
	} else if !found {
		p.Log.Debugf("%v config not found", p.PluginName)
		return nil
	}
	p.Log.Debugf("%v config found: %+v", p.PluginName, config)
	return nil
}
