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
	"time"

	"github.com/pkg/errors"

	"github.com/cobaal/fwdsync/plugins/fwdsync/addrmap"
	"github.com/cobaal/fwdsync/plugins/fwdsync/pathsel"
	"github.com/cobaal/fwdsync/plugins/fwdsync/reconciler"
	"github.com/cobaal/fwdsync/plugins/fwdsync/rulesynth"
	"github.com/cobaal/fwdsync/plugins/topology/model"
)

// FailureReason classifies the failure of a single device pair.
type FailureReason string

const (
	// MalformedDeviceID means that no address could be derived for the destination.
	MalformedDeviceID FailureReason = "malformed-device-id"
	// NoPathFound means that the pair is disconnected.
	NoPathFound FailureReason = "no-path-found"
	// MissingPortAddress means that the next hop does not advertise its MAC.
	MissingPortAddress FailureReason = "missing-port-address"
	// RuleProgramming means that the rule store failed to read or write rules.
	RuleProgramming FailureReason = "rule-programming"
	// OtherFailure is used for unclassified errors.
	OtherFailure FailureReason = "other"
)

// Trigger of a reconciliation pass.
type Trigger string

const (
	// StartupTrigger is the first pass run by the startup resync.
	StartupTrigger Trigger = "startup"
	// HealingTrigger is a pass run by a healing resync.
	HealingTrigger Trigger = "healing"
	// TopologyChangeTrigger is a pass run for a topology change notification.
	TopologyChangeTrigger Trigger = "topology-change"
)

// localPath is reported as the path of self pairs.
const localPath = "local"

// RunReport summarizes one full reconciliation pass.
type RunReport struct {
	Trigger         Trigger          `json:"trigger,omitempty"`
	TopologyVersion uint64           `json:"topologyVersion"`
	Start           time.Time        `json:"start"`
	End             time.Time        `json:"end"`
	Devices         []model.DeviceID `json:"devices"`
	Pairs           []*PairReport    `json:"pairs"`
	Installed       int              `json:"installed"`
	Removed         int              `json:"removed"`
	Failed          int              `json:"failed"`
}

// PairReport describes reconciliation of a single (src, dst) pair.
type PairReport struct {
	Src       model.DeviceID `json:"src"`
	Dst       model.DeviceID `json:"dst"`
	Path      string         `json:"path,omitempty"`
	Installed int            `json:"installed"`
	Removed   int            `json:"removed"`
	Reason    FailureReason  `json:"reason,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// Failures returns reports of the failed pairs.
func (r *RunReport) Failures() []*PairReport {
	var failures []*PairReport
	for _, pair := range r.Pairs {
		if pair.Reason != "" {
			failures = append(failures, pair)
		}
	}
	return failures
}

// Pair returns the report of the given pair, nil if the pair was not processed.
func (r *RunReport) Pair(src, dst model.DeviceID) *PairReport {
	for _, pair := range r.Pairs {
		if pair.Src == src && pair.Dst == dst {
			return pair
		}
	}
	return nil
}

// String returns a one-line summary of the pass.
func (r *RunReport) String() string {
	return fmt.Sprintf("topology v%d, %d devices, %d pairs: %d installed, %d removed, %d failed (took %v)",
		r.TopologyVersion, len(r.Devices), len(r.Pairs), r.Installed, r.Removed, r.Failed,
		r.End.Sub(r.Start))
}

// classifyError maps an error of the pair reconciliation to the failure reason.
func classifyError(err error) FailureReason {
	if _, isProgErr := errors.Cause(err).(*reconciler.RuleProgrammingError); isProgErr {
		return RuleProgramming
	}
	if addrmap.IsMalformed(err) {
		return MalformedDeviceID
	}
	switch errors.Cause(err) {
	case pathsel.ErrNoPathFound:
		return NoPathFound
	case rulesynth.ErrMissingPortAddress:
		return MissingPortAddress
	}
	return OtherFailure
}
