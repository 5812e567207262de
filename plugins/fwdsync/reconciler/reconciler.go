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

package reconciler

import (
	"fmt"

	"github.com/ligato/cn-infra/logging"

	"github.com/cobaal/fwdsync/plugins/flowrule/model"
	topology "github.com/cobaal/fwdsync/plugins/topology/model"
)

// Operation on the rule store.
type Operation string

const (
	// GetOp reads the device table.
	GetOp Operation = "get"
	// InstallOp installs a rule.
	InstallOp Operation = "install"
	// RemoveOp removes a rule.
	RemoveOp Operation = "remove"
)

// RuleStore is the subset of the rule store API used by the reconciler.
type RuleStore interface {
	GetRules(device topology.DeviceID) ([]*model.ForwardingRule, error)
	InstallRule(rule *model.ForwardingRule) error
	RemoveRule(rule *model.ForwardingRule) error
}

// RuleProgrammingError is returned when the rule store fails to read
// or program a device table.
type RuleProgrammingError struct {
	Op      Operation
	Device  topology.DeviceID
	Rule    *model.ForwardingRule // nil for GetOp
	origErr error
}

// NewRuleProgrammingError is the constructor for RuleProgrammingError.
func NewRuleProgrammingError(op Operation, device topology.DeviceID, rule *model.ForwardingRule, origErr error) error {
	return &RuleProgrammingError{Op: op, Device: device, Rule: rule, origErr: origErr}
}

// Error describes the failed operation.
func (e *RuleProgrammingError) Error() string {
	if e.Rule == nil {
		return fmt.Sprintf("failed to %s rules of %s: %v", e.Op, e.Device, e.origErr)
	}
	return fmt.Sprintf("failed to %s rule %v: %v", e.Op, e.Rule, e.origErr)
}

// GetOriginalError returns the underlying error.
func (e *RuleProgrammingError) GetOriginalError() error {
	return e.origErr
}

// Result counts the writes made by Reconcile.
type Result struct {
	Installed int
	Removed   int
	// Converged is true if the device already had the desired rule.
	Converged bool
}

// Reconciler brings a device table in line with a desired rule.
type Reconciler struct {
	Log   logging.Logger
	Rules RuleStore
}

// Reconcile makes sure that the device of the desired rule holds exactly one
// rule matching its destination prefix, with the desired MAC rewrite and
// output port. Conflicting rules are removed before the desired rule is
// installed. Nothing is written if the table is already converged.
func (r *Reconciler) Reconcile(desired *model.ForwardingRule) (res Result, err error) {
	device := desired.Device
	installed, err := r.Rules.GetRules(device)
	if err != nil {
		return res, NewRuleProgrammingError(GetOp, device, nil, err)
	}

	var stale []*model.ForwardingRule
	for _, rule := range installed {
		if !rule.MatchesIPv4Dst(desired.Selector.IPv4Dst) {
			continue
		}
		if !res.Converged && isConverged(rule, desired) {
			res.Converged = true
			continue
		}
		stale = append(stale, rule)
	}

	for _, rule := range stale {
		r.Log.Debugf("Removing stale rule %v", rule)
		if err := r.Rules.RemoveRule(rule); err != nil {
			return res, NewRuleProgrammingError(RemoveOp, device, rule, err)
		}
		res.Removed++
	}

	if res.Converged {
		return res, nil
	}
	r.Log.Debugf("Installing rule %v", desired)
	if err := r.Rules.InstallRule(desired); err != nil {
		return res, NewRuleProgrammingError(InstallOp, device, desired, err)
	}
	res.Installed++
	return res, nil
}

// isConverged returns true if the installed rule forwards like the desired one.
// A rule without MAC rewrite never converges.
func isConverged(installed, desired *model.ForwardingRule) bool {
	mac := installed.RewriteMAC()
	if mac == nil {
		return false
	}
	return model.SameMAC(mac, desired.RewriteMAC()) &&
		installed.Treatment.Output == desired.Treatment.Output
}
