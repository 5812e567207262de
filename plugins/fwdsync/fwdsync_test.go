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
	"net"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ghodss/yaml"
	"github.com/ligato/cn-infra/infra"
	"github.com/ligato/cn-infra/logging"
	. "github.com/onsi/gomega"
	"github.com/pkg/errors"

	mockflowrule "github.com/cobaal/fwdsync/mock/flowrule"
	mocktopology "github.com/cobaal/fwdsync/mock/topology"
	"github.com/cobaal/fwdsync/plugins/controller"
	controllerapi "github.com/cobaal/fwdsync/plugins/controller/api"
	"github.com/cobaal/fwdsync/plugins/flowrule/model"
	"github.com/cobaal/fwdsync/plugins/topology"
	topomodel "github.com/cobaal/fwdsync/plugins/topology/model"
)

const (
	dev1 topomodel.DeviceID = "of:0000000000000001"
	dev2 topomodel.DeviceID = "of:0000000000000002"
	dev3 topomodel.DeviceID = "of:0000000000000003"
	dev4 topomodel.DeviceID = "of:0000000000000004"
)

// syncEventLoop processes every event synchronously inside PushEvent.
type syncEventLoop struct {
	sync.Mutex
	handler     controllerapi.EventHandler
	closed      bool
	resyncCount int
	errors      []error
}

func (el *syncEventLoop) PushEvent(event controllerapi.Event) error {
	el.Lock()
	defer el.Unlock()
	if el.closed {
		return errors.New("event loop is closed")
	}
	var err error
	if el.handler.HandlesEvent(event) {
		if event.Method() == controllerapi.Resync {
			el.resyncCount++
			err = el.handler.Resync(event, el.resyncCount)
		} else {
			_, err = el.handler.Update(event)
		}
	}
	el.errors = append(el.errors, err)
	event.Done(err)
	return nil
}

func (el *syncEventLoop) close() {
	el.Lock()
	defer el.Unlock()
	el.closed = true
}

// yamlConfig is a plugin config read from a YAML string.
type yamlConfig string

func (c yamlConfig) LoadValue(data interface{}) (bool, error) {
	return true, yaml.Unmarshal([]byte(c), data)
}

func (c yamlConfig) GetConfigName() string {
	return "fwdsync.conf"
}

var pluginCount uint32

type fixture struct {
	plugin *Plugin
	topo   *mocktopology.MockTopology
	store  *mockflowrule.MockRuleStore
	loop   *syncEventLoop
}

func newFixture(config string) *fixture {
	name := fmt.Sprintf("fwdsync-test-%d", atomic.AddUint32(&pluginCount, 1))
	f := &fixture{
		topo:  mocktopology.NewMockTopology(),
		store: mockflowrule.NewMockRuleStore(),
		loop:  &syncEventLoop{},
	}
	f.plugin = &Plugin{
		Deps: Deps{
			PluginDeps: infra.PluginDeps{
				PluginName: infra.PluginName(name),
				Log:        logging.ForPlugin(name),
			},
			Topology:  f.topo,
			Devices:   f.topo,
			RuleStore: f.store,
			EventLoop: f.loop,
		},
	}
	if config != "" {
		f.plugin.Cfg = yamlConfig(config)
	}
	f.loop.handler = f.plugin
	return f
}

func port(number topomodel.PortNumber, mac string) *topomodel.Port {
	p := &topomodel.Port{Number: number}
	if mac != "" {
		p.Annotations = map[string]string{"portMac": mac}
	}
	return p
}

func biLink(a topomodel.DeviceID, aPort topomodel.PortNumber, b topomodel.DeviceID, bPort topomodel.PortNumber) []*topomodel.Link {
	aCP := topomodel.ConnectPoint{Device: a, Port: aPort}
	bCP := topomodel.ConnectPoint{Device: b, Port: bPort}
	return []*topomodel.Link{
		{Src: aCP, Dst: bCP, Cost: topomodel.DefaultLinkCost},
		{Src: bCP, Dst: aCP, Cost: topomodel.DefaultLinkCost},
	}
}

// lineTopology: dev1 (port 2) <-> (port 1) dev2 (port 2) <-> (port 1) dev3
func lineTopology() ([]*topomodel.Device, []*topomodel.Link) {
	devices := []*topomodel.Device{
		{ID: dev1, Available: true, Ports: []*topomodel.Port{
			port(1, "00:00:00:00:01:01"), port(2, "00:00:00:00:01:02")}},
		{ID: dev2, Available: true, Ports: []*topomodel.Port{
			port(1, "00:00:00:00:02:01"), port(2, "00:00:00:00:02:02")}},
		{ID: dev3, Available: true, Ports: []*topomodel.Port{
			port(1, "00:00:00:00:03:01"), port(2, "00:00:00:00:03:02")}},
	}
	links := append(biLink(dev1, 2, dev2, 1), biLink(dev2, 2, dev3, 1)...)
	return devices, links
}

func prefix(cidr string) *net.IPNet {
	_, ipNet, err := net.ParseCIDR(cidr)
	Expect(err).To(BeNil())
	return ipNet
}

// rulesFor returns rules on the device matching the destination prefix.
func (f *fixture) rulesFor(device topomodel.DeviceID, dst string) []*model.ForwardingRule {
	var rules []*model.ForwardingRule
	for _, rule := range f.store.Rules(device) {
		if rule.MatchesIPv4Dst(prefix(dst)) {
			rules = append(rules, rule)
		}
	}
	return rules
}

func (f *fixture) start() {
	Expect(f.plugin.Init()).To(Succeed())
	Expect(f.loop.PushEvent(&controllerapi.StartupResync{})).To(Succeed())
}

func (f *fixture) runPass() *RunReport {
	snapshot := f.topo.CurrentTopology()
	return f.plugin.RunFullReconciliation(snapshot, f.topo.GetAvailableDevices())
}

func TestThreeDeviceExample(t *testing.T) {
	RegisterTestingT(t)
	f := newFixture("")
	f.topo.SetTopology(lineTopology())
	f.start()

	report := f.plugin.LastRunReport()
	Expect(report).ToNot(BeNil())
	Expect(report.Trigger).To(Equal(StartupTrigger))
	Expect(report.Pairs).To(HaveLen(9))
	Expect(report.Failed).To(BeZero())
	Expect(report.Installed).To(Equal(9))

	// of:0001 -> of:0002
	rules := f.rulesFor(dev1, "10.0.0.2/32")
	Expect(rules).To(HaveLen(1))
	Expect(rules[0].RewriteMAC().String()).To(Equal("00:00:00:00:02:01"))
	Expect(rules[0].Treatment.Output).To(BeEquivalentTo(2))
	Expect(rules[0].Priority).To(Equal(10))
	Expect(rules[0].Permanent).To(BeTrue())
	Expect(rules[0].Owner).To(Equal("org.cobaal.app"))

	// of:0001 self rule
	rules = f.rulesFor(dev1, "10.0.0.1/32")
	Expect(rules).To(HaveLen(1))
	Expect(rules[0].RewriteMAC()).To(Equal(model.BroadcastMAC))
	Expect(rules[0].Treatment.Output).To(BeEquivalentTo(1))

	// of:0001 -> of:0003 goes via of:0002
	rules = f.rulesFor(dev1, "10.0.0.3/32")
	Expect(rules).To(HaveLen(1))
	Expect(rules[0].RewriteMAC().String()).To(Equal("00:00:00:00:02:01"))
	Expect(rules[0].Treatment.Output).To(BeEquivalentTo(2))

	// of:0002 reaches both neighbours directly
	rules = f.rulesFor(dev2, "10.0.0.3/32")
	Expect(rules).To(HaveLen(1))
	Expect(rules[0].RewriteMAC().String()).To(Equal("00:00:00:00:03:01"))
	Expect(rules[0].Treatment.Output).To(BeEquivalentTo(2))
	rules = f.rulesFor(dev2, "10.0.0.1/32")
	Expect(rules).To(HaveLen(1))
	Expect(rules[0].RewriteMAC().String()).To(Equal("00:00:00:00:01:02"))
	Expect(rules[0].Treatment.Output).To(BeEquivalentTo(1))

	pair := report.Pair(dev1, dev3)
	Expect(pair).ToNot(BeNil())
	Expect(pair.Path).To(ContainSubstring("of:0000000000000002/2->of:0000000000000003/1"))
	Expect(report.Pair(dev2, dev2).Path).To(Equal(localPath))
}

func TestIdempotence(t *testing.T) {
	RegisterTestingT(t)
	f := newFixture("")
	f.topo.SetTopology(lineTopology())
	f.start()
	f.store.ResetOps()

	report := f.runPass()
	Expect(report.Failed).To(BeZero())
	Expect(report.Installed).To(BeZero())
	Expect(report.Removed).To(BeZero())
	Expect(f.store.Ops()).To(BeEmpty())
}

func TestConvergence(t *testing.T) {
	RegisterTestingT(t)
	f := newFixture("")
	devices, links := lineTopology()
	f.topo.SetTopology(devices, links)
	f.start()

	for _, src := range []topomodel.DeviceID{dev1, dev2, dev3} {
		// exactly one rule per destination
		Expect(f.store.Rules(src)).To(HaveLen(3))
		for _, dst := range []string{"10.0.0.1/32", "10.0.0.2/32", "10.0.0.3/32"} {
			Expect(f.rulesFor(src, dst)).To(HaveLen(1))
		}
	}
}

func TestStaleRuleReplaced(t *testing.T) {
	RegisterTestingT(t)
	f := newFixture("")
	f.topo.SetTopology(lineTopology())

	wrongMAC, _ := net.ParseMAC("00:00:00:00:09:09")
	f.store.Preinstall(&model.ForwardingRule{
		Device:    dev1,
		Priority:  10,
		Owner:     "org.cobaal.app",
		Permanent: true,
		Selector:  model.Selector{EthType: model.EthTypeIPv4, IPv4Dst: prefix("10.0.0.2/32")},
		Treatment: model.Treatment{EthDst: wrongMAC, Output: 2},
	})
	f.start()

	var dev1Ops []mockflowrule.Op
	for _, op := range f.store.Ops() {
		if op.Device == dev1 && op.Rule.MatchesIPv4Dst(prefix("10.0.0.2/32")) {
			dev1Ops = append(dev1Ops, op)
		}
	}
	Expect(dev1Ops).To(HaveLen(2))
	Expect(dev1Ops[0].Type).To(Equal(mockflowrule.Remove))
	Expect(dev1Ops[0].Rule.RewriteMAC().String()).To(Equal("00:00:00:00:09:09"))
	Expect(dev1Ops[1].Type).To(Equal(mockflowrule.Install))
	Expect(dev1Ops[1].Rule.RewriteMAC().String()).To(Equal("00:00:00:00:02:01"))

	report := f.plugin.LastRunReport()
	Expect(report.Pair(dev1, dev2).Removed).To(Equal(1))
	Expect(report.Pair(dev1, dev2).Installed).To(Equal(1))
}

func TestDisconnectedPair(t *testing.T) {
	RegisterTestingT(t)
	f := newFixture("")
	devices, links := lineTopology()
	devices = append(devices, &topomodel.Device{ID: dev4, Available: true})
	f.topo.SetTopology(devices, links)
	f.start()

	report := f.plugin.LastRunReport()
	Expect(report.Pairs).To(HaveLen(16))
	Expect(report.Failed).To(Equal(6))
	for _, failure := range report.Failures() {
		Expect(failure.Reason).To(Equal(NoPathFound))
		Expect(failure.Src == dev4 || failure.Dst == dev4).To(BeTrue())
	}

	// nothing towards of:0004, the rest converged
	Expect(f.rulesFor(dev1, "10.0.0.4/32")).To(BeEmpty())
	Expect(f.rulesFor(dev1, "10.0.0.3/32")).To(HaveLen(1))
	Expect(f.store.Rules(dev4)).To(HaveLen(1))
	Expect(f.rulesFor(dev4, "10.0.0.4/32")[0].RewriteMAC()).To(Equal(model.BroadcastMAC))

	// the failed pairs were reported to the event loop
	Expect(f.loop.errors).To(HaveLen(1))
	Expect(f.loop.errors[0]).To(HaveOccurred())
}

func TestPairFailuresDoNotStopPass(t *testing.T) {
	RegisterTestingT(t)
	f := newFixture("")
	devices, links := lineTopology()
	devices[1].Ports[0] = port(1, "") // of:0002/1 does not advertise MAC
	devices = append(devices, &topomodel.Device{ID: "of:zz", Available: true})
	f.topo.SetTopology(devices, links)
	f.store.FailInstall(dev3, errors.New("table full"))
	Expect(f.plugin.Init()).To(Succeed())

	report := f.runPass()
	reasons := make(map[FailureReason]int)
	for _, failure := range report.Failures() {
		reasons[failure.Reason]++
	}
	// "of:zz" has no address: 4 pairs towards it
	Expect(reasons[MalformedDeviceID]).To(Equal(4))
	// of:0001 -> of:0002 and of:0001 -> of:0003 need the MAC of of:0002/1
	Expect(reasons[MissingPortAddress]).To(Equal(2))
	// of:0003 cannot install anything (three addressable destinations)
	Expect(reasons[RuleProgramming]).To(Equal(3))
	// "of:zz" is disconnected from the rest
	Expect(reasons[NoPathFound]).To(Equal(3))

	Expect(report.Pair(dev1, dev1).Reason).To(BeEmpty())
	Expect(report.Pair(dev2, dev1).Reason).To(BeEmpty())
	Expect(report.Pair(dev2, dev3).Reason).To(BeEmpty())
	Expect(f.rulesFor(dev2, "10.0.0.1/32")).To(HaveLen(1))
}

func TestDeterministicPathChoice(t *testing.T) {
	RegisterTestingT(t)

	// square: of:0001 reaches of:0003 via of:0002 or of:0004 at equal cost
	squareTopology := func() ([]*topomodel.Device, []*topomodel.Link) {
		var devices []*topomodel.Device
		for i, id := range []topomodel.DeviceID{dev1, dev2, dev3, dev4} {
			devices = append(devices, &topomodel.Device{ID: id, Available: true, Ports: []*topomodel.Port{
				port(1, fmt.Sprintf("00:00:00:00:0%d:01", i+1)),
				port(2, fmt.Sprintf("00:00:00:00:0%d:02", i+1)),
			}})
		}
		var links []*topomodel.Link
		links = append(links, biLink(dev1, 1, dev2, 1)...)
		links = append(links, biLink(dev2, 2, dev3, 1)...)
		links = append(links, biLink(dev1, 2, dev4, 1)...)
		links = append(links, biLink(dev4, 2, dev3, 2)...)
		return devices, links
	}

	var chosen []string
	for _, reverse := range []bool{false, true} {
		f := newFixture("")
		f.topo.SetTopology(squareTopology())
		f.topo.ReversePaths(reverse)
		f.start()
		chosen = append(chosen, f.plugin.LastRunReport().Pair(dev1, dev3).Path)
		Expect(f.rulesFor(dev1, "10.0.0.3/32")[0].Treatment.Output).To(BeEquivalentTo(1))
	}
	Expect(chosen[0]).To(Equal(chosen[1]))
}

func TestTopologyChangeTriggersPass(t *testing.T) {
	RegisterTestingT(t)
	f := newFixture("")
	devices, links := lineTopology()
	f.topo.SetTopology(devices[:2], links[:2])
	f.start()
	Expect(f.store.Rules(dev1)).To(HaveLen(2))

	f.topo.SetTopology(lineTopology())
	Eventually(func() Trigger {
		if report := f.plugin.LastRunReport(); report != nil {
			return report.Trigger
		}
		return ""
	}).Should(Equal(TopologyChangeTrigger))
	Eventually(func() int { return len(f.store.Rules(dev1)) }).Should(Equal(3))

	Expect(f.plugin.Close()).To(Succeed())
}

func TestSkipUnchangedTopology(t *testing.T) {
	RegisterTestingT(t)
	f := newFixture("skip-unchanged-topology: true")
	f.topo.SetTopology(lineTopology())
	f.start()
	startup := f.plugin.LastRunReport()

	change := &topology.TopologyChange{Version: f.topo.CurrentTopology().Version}
	Expect(f.loop.PushEvent(change)).To(Succeed())
	Expect(f.plugin.LastRunReport()).To(BeIdenticalTo(startup))

	// the skip is disabled by default
	f = newFixture("")
	f.topo.SetTopology(lineTopology())
	f.start()
	startup = f.plugin.LastRunReport()
	Expect(f.loop.PushEvent(change)).To(Succeed())
	Expect(f.plugin.LastRunReport()).ToNot(BeIdenticalTo(startup))
}

func TestCloseRemovesOwnedRules(t *testing.T) {
	RegisterTestingT(t)
	f := newFixture("app-name: test-app")
	f.topo.SetTopology(lineTopology())

	foreign := &model.ForwardingRule{
		Device:    dev1,
		Priority:  40000,
		Owner:     "other-app",
		Selector:  model.Selector{EthType: model.EthTypeIPv4, IPv4Dst: prefix("192.168.0.0/16")},
		Treatment: model.Treatment{Output: 3},
	}
	f.store.Preinstall(foreign)
	f.start()
	Expect(f.store.Rules(dev1)).To(HaveLen(4))
	Expect(f.rulesFor(dev1, "10.0.0.1/32")[0].Owner).To(Equal("test-app"))
	Expect(f.topo.WatcherCount()).To(Equal(1))

	Expect(f.plugin.Close()).To(Succeed())
	Expect(f.topo.WatcherCount()).To(BeZero())
	Expect(f.store.Rules(dev1)).To(HaveLen(1))
	Expect(f.store.Rules(dev1)[0].Owner).To(Equal("other-app"))
	Expect(f.store.Rules(dev2)).To(BeEmpty())

	ops := f.store.Ops()
	Expect(ops[len(ops)-1].Type).To(Equal(mockflowrule.RemoveByOwner))
	Expect(ops[len(ops)-1].Owner).To(Equal("test-app"))

	// no pass after shutdown
	Expect(f.loop.PushEvent(&controllerapi.HealingResync{Type: controllerapi.Requested})).To(Succeed())
	Expect(f.store.Rules(dev2)).To(BeEmpty())
}

func TestCloseWithEventLoopClosed(t *testing.T) {
	RegisterTestingT(t)
	f := newFixture("")
	f.topo.SetTopology(lineTopology())
	f.start()
	f.loop.close()

	Expect(f.plugin.Close()).To(Succeed())
	for _, device := range []topomodel.DeviceID{dev1, dev2, dev3} {
		Expect(f.store.Rules(device)).To(BeEmpty())
	}
}

func TestWithController(t *testing.T) {
	RegisterTestingT(t)
	f := newFixture("")
	f.topo.SetTopology(lineTopology())

	name := fmt.Sprintf("fwdsync-controller-test-%d", atomic.AddUint32(&pluginCount, 1))
	c := &controller.Controller{
		Deps: controller.Deps{
			PluginDeps: infra.PluginDeps{
				PluginName: infra.PluginName(name),
				Log:        logging.ForPlugin(name),
			},
			EventHandlers: []controllerapi.EventHandler{f.plugin},
		},
	}
	f.plugin.EventLoop = c

	Expect(c.Init()).To(Succeed())
	Expect(f.plugin.Init()).To(Succeed())
	Expect(c.AfterInit()).To(Succeed())

	Eventually(func() int { return len(f.store.Rules(dev3)) }).Should(Equal(3))

	// of:0003 becomes unreachable
	devices, links := lineTopology()
	f.topo.SetTopology(devices, links[:2])
	Eventually(func() int {
		if report := f.plugin.LastRunReport(); report != nil {
			return report.Failed
		}
		return 0
	}).Should(Equal(4))
	Expect(f.rulesFor(dev1, "10.0.0.3/32")).To(HaveLen(1))

	Expect(f.plugin.Close()).To(Succeed())
	Expect(c.Close()).To(Succeed())
	Expect(f.store.Rules(dev1)).To(BeEmpty())
	Expect(c.GetEventHistory()).ToNot(BeEmpty())
}
