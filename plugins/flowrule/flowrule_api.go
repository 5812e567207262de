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
	"github.com/cobaal/fwdsync/plugins/flowrule/model"
	topology "github.com/cobaal/fwdsync/plugins/topology/model"
)

// API is the rule store used to read and program forwarding tables of devices.
// Every call is atomic on its own.
type API interface {
	// GetRules returns all rules currently installed on the device.
	GetRules(device topology.DeviceID) ([]*model.ForwardingRule, error)

	// InstallRule installs the rule into the table of rule.Device.
	// A rule with the same selector and priority is overwritten.
	InstallRule(rule *model.ForwardingRule) error

	// RemoveRule removes the rule from the table of rule.Device.
	RemoveRule(rule *model.ForwardingRule) error

	// RemoveRulesByOwner removes all rules tagged with the given owner
	// from all devices.
	RemoveRulesByOwner(owner string) error
}
