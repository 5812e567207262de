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
	"sync"

	"github.com/pkg/errors"

	"github.com/cobaal/fwdsync/plugins/flowrule/model"
	topology "github.com/cobaal/fwdsync/plugins/topology/model"
)

// OpType is the type of a recorded rule store call.
type OpType string

const (
	// Install is a call to InstallRule.
	Install OpType = "install"
	// Remove is a call to RemoveRule.
	Remove OpType = "remove"
	// RemoveByOwner is a call to RemoveRulesByOwner.
	RemoveByOwner OpType = "remove-by-owner"
)

// Op is a single recorded write into the rule store.
type Op struct {
	Type   OpType
	Device topology.DeviceID
	Rule   *model.ForwardingRule // nil for RemoveByOwner
	Owner  string                // only for RemoveByOwner
}

// MockRuleStore is an in-memory rule store recording all writes
// and allowing to inject failures.
type MockRuleStore struct {
	sync.Mutex

	lastID uint64
	tables map[topology.DeviceID][]*model.ForwardingRule
	ops    []Op

	getErr     map[topology.DeviceID]error
	installErr map[topology.DeviceID]error
	removeErr  map[topology.DeviceID]error
}

// NewMockRuleStore is a constructor for MockRuleStore.
func NewMockRuleStore() *MockRuleStore {
	return &MockRuleStore{
		tables:     make(map[topology.DeviceID][]*model.ForwardingRule),
		getErr:     make(map[topology.DeviceID]error),
		installErr: make(map[topology.DeviceID]error),
		removeErr:  make(map[topology.DeviceID]error),
	}
}

// FailGet makes GetRules for the device return the error (nil to stop failing).
func (m *MockRuleStore) FailGet(device topology.DeviceID, err error) {
	m.Lock()
	defer m.Unlock()
	m.getErr[device] = err
}

// FailInstall makes InstallRule for the device return the error.
func (m *MockRuleStore) FailInstall(device topology.DeviceID, err error) {
	m.Lock()
	defer m.Unlock()
	m.installErr[device] = err
}

// FailRemove makes RemoveRule for the device return the error.
func (m *MockRuleStore) FailRemove(device topology.DeviceID, err error) {
	m.Lock()
	defer m.Unlock()
	m.removeErr[device] = err
}

// Preinstall puts the rule into the device table without recording the write.
func (m *MockRuleStore) Preinstall(rule *model.ForwardingRule) {
	m.Lock()
	defer m.Unlock()
	m.lastID++
	rule.ID = m.lastID
	m.tables[rule.Device] = append(m.tables[rule.Device], rule)
}

// GetRules returns rules installed on the device.
func (m *MockRuleStore) GetRules(device topology.DeviceID) ([]*model.ForwardingRule, error) {
	m.Lock()
	defer m.Unlock()
	if err := m.getErr[device]; err != nil {
		return nil, err
	}
	return append([]*model.ForwardingRule{}, m.tables[device]...), nil
}

// InstallRule appends the rule into the device table.
func (m *MockRuleStore) InstallRule(rule *model.ForwardingRule) error {
	m.Lock()
	defer m.Unlock()
	if err := m.installErr[rule.Device]; err != nil {
		return err
	}
	m.lastID++
	rule.ID = m.lastID
	m.tables[rule.Device] = append(m.tables[rule.Device], rule)
	m.ops = append(m.ops, Op{Type: Install, Device: rule.Device, Rule: rule})
	return nil
}

// RemoveRule removes the rule with the same ID from the device table.
func (m *MockRuleStore) RemoveRule(rule *model.ForwardingRule) error {
	m.Lock()
	defer m.Unlock()
	if err := m.removeErr[rule.Device]; err != nil {
		return err
	}
	table := m.tables[rule.Device]
	for i, installed := range table {
		if installed.ID == rule.ID {
			m.tables[rule.Device] = append(table[:i:i], table[i+1:]...)
			m.ops = append(m.ops, Op{Type: Remove, Device: rule.Device, Rule: rule})
			return nil
		}
	}
	return errors.Errorf("rule %d is not installed on %s", rule.ID, rule.Device)
}

// RemoveRulesByOwner removes all rules of the owner.
func (m *MockRuleStore) RemoveRulesByOwner(owner string) error {
	m.Lock()
	defer m.Unlock()
	for device, table := range m.tables {
		var kept []*model.ForwardingRule
		for _, rule := range table {
			if rule.Owner != owner {
				kept = append(kept, rule)
			}
		}
		m.tables[device] = kept
	}
	m.ops = append(m.ops, Op{Type: RemoveByOwner, Owner: owner})
	return nil
}

// Rules returns the current table of the device.
func (m *MockRuleStore) Rules(device topology.DeviceID) []*model.ForwardingRule {
	m.Lock()
	defer m.Unlock()
	return append([]*model.ForwardingRule{}, m.tables[device]...)
}

// Ops returns all recorded writes.
func (m *MockRuleStore) Ops() []Op {
	m.Lock()
	defer m.Unlock()
	return append([]Op{}, m.ops...)
}

// ResetOps forgets the recorded writes.
func (m *MockRuleStore) ResetOps() {
	m.Lock()
	defer m.Unlock()
	m.ops = nil
}
