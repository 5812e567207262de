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

import (
	"time"

	"github.com/pkg/errors"
)

// ErrShutdownTimeout is returned by Shutdown.WaitTimeout when the event
// was not processed in time.
var ErrShutdownTimeout = errors.New("timeout waiting for the Shutdown event")

// Shutdown is a blocking event pushed by plugins being closed, to clean up
// their state in sync with the other events.
type Shutdown struct {
	// Requester is the name of the plugin which pushed the event.
	Requester string

	result chan error
}

// NewShutdownEvent is constructor for Shutdown event.
func NewShutdownEvent() *Shutdown {
	return &Shutdown{
		result: make(chan error, 1),
	}
}

// GetName returns name of the Shutdown event.
func (ev *Shutdown) GetName() string {
	return "Shutdown"
}

// String describes Shutdown event.
func (ev *Shutdown) String() string {
	if ev.Requester == "" {
		return ev.GetName()
	}
	return ev.GetName() + " (requested by " + ev.Requester + ")"
}

// Method is Update.
func (ev *Shutdown) Method() EventMethodType {
	return Update
}

// IsBlocking returns true.
func (ev *Shutdown) IsBlocking() bool {
	return true
}

// Done propagates result to the event producer.
func (ev *Shutdown) Done(err error) {
	ev.result <- err
}

// Wait waits for the result of the shutdown event.
func (ev *Shutdown) Wait() error {
	return <-ev.result
}

// WaitTimeout waits for the result at most for the given duration.
func (ev *Shutdown) WaitTimeout(timeout time.Duration) error {
	select {
	case err := <-ev.result:
		return err
	case <-time.After(timeout):
		return ErrShutdownTimeout
	}
}
