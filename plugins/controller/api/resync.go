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

package api

import "fmt"

/******************************* Startup Resync *******************************/

// StartupResync is the first event processed by the event loop.
// Events pushed before it are delayed until it has been processed.
type StartupResync struct{}

// GetName returns name of the StartupResync event.
func (ev *StartupResync) GetName() string {
	return "Startup Resync"
}

// String describes StartupResync event.
func (ev *StartupResync) String() string {
	return ev.GetName()
}

// Method is Resync.
func (ev *StartupResync) Method() EventMethodType {
	return Resync
}

// IsBlocking returns false.
func (ev *StartupResync) IsBlocking() bool {
	return false
}

// Done is NOOP.
func (ev *StartupResync) Done(error) {
	return
}

/******************************* Healing Resync *******************************/

// HealingResyncType is either Periodic, AfterError or Requested.
type HealingResyncType int

const (
	// Periodic healing resync, when enabled in the configuration, is run periodically.
	Periodic HealingResyncType = iota

	// AfterError healing resync is triggered after an event processing ended with error.
	AfterError

	// Requested healing resync was asked for over the REST API.
	Requested
)

// HealingResync re-runs the full synchronization outside of the startup.
type HealingResync struct {
	Type  HealingResyncType
	Error error // non-nil if the resync is of type AfterError
}

// GetName returns name of the HealingResync event.
func (ev *HealingResync) GetName() string {
	return "Healing Resync"
}

// String describes HealingResync event.
func (ev *HealingResync) String() string {
	str := ev.GetName()
	switch ev.Type {
	case AfterError:
		str += fmt.Sprintf(" (After error: %v)", ev.Error)
	case Requested:
		str += " (Requested)"
	default:
		str += " (Periodic)"
	}
	return str
}

// Method is Resync.
func (ev *HealingResync) Method() EventMethodType {
	return Resync
}

// IsBlocking returns false.
func (ev *HealingResync) IsBlocking() bool {
	return false
}

// Done is NOOP.
func (ev *HealingResync) Done(error) {
	return
}

// CoalesceKey makes multiple pending healing resyncs collapse into one.
func (ev *HealingResync) CoalesceKey() string {
	return ev.GetName()
}
