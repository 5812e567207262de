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

// EventLoop accepts events for sequential processing.
type EventLoop interface {
	// PushEvent adds the event into the queue. Coalescable events may be
	// merged with an equivalent event that is still waiting in the queue.
	PushEvent(event Event) error
}

// Event is anything that the event loop can process.
type Event interface {
	// GetName returns a short name of the event, used in logs and in the history.
	GetName() string

	// String returns a multi-line description of the event.
	String() string

	// Method tells whether the event requires a full Resync or an Update.
	Method() EventMethodType

	// IsBlocking returns true if the sender waits for Done to be called.
	// Blocking events cannot be sent from within the event loop.
	IsBlocking() bool

	// Done is called once the processing of the event has finished.
	Done(error)
}

// CoalescableEvent is an event that does not need to be processed more than
// once while it waits in the queue: two events with the same key pending
// at the same time have the same effect as one.
type CoalescableEvent interface {
	Event

	// CoalesceKey identifies the class of equivalent events.
	CoalesceKey() string
}

// EventHandler reacts to events delivered by the event loop.
type EventHandler interface {
	// String identifies the handler in logs and in the event history.
	String() string

	// HandlesEvent is used to filter out events the handler is not interested in.
	HandlesEvent(event Event) bool

	// Resync performs a full re-synchronization.
	// For the startup resync, resyncCount is 1.
	Resync(event Event, resyncCount int) error

	// Update reacts to a change. <changeDescription> is a human-readable
	// summary of what the handler did, can be empty.
	Update(event Event) (changeDescription string, err error)
}

// EventMethodType is either Resync or Update.
type EventMethodType int

const (
	// Resync requires handlers to re-synchronize their entire state.
	Resync EventMethodType = iota

	// Update notifies handlers about a change.
	Update
)

// String returns the name of the method.
func (m EventMethodType) String() string {
	if m == Resync {
		return "Resync"
	}
	return "Update"
}
