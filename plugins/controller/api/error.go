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

import "github.com/pkg/errors"

// FatalError stops the event loop. The controller reports the error
// to the status check and processes no further events.
type FatalError struct {
	origErr error
}

// NewFatalError is the constructor for FatalError.
func NewFatalError(origErr error) error {
	return &FatalError{origErr: origErr}
}

// Error delegates the call to the underlying error.
func (e *FatalError) Error() string {
	return "fatal: " + e.origErr.Error()
}

// GetOriginalError returns the underlying error.
func (e *FatalError) GetOriginalError() error {
	return e.origErr
}

// AbortEventError prevents the event from reaching the remaining handlers.
// The event loop keeps running.
type AbortEventError struct {
	origErr error
}

// NewAbortEventError is the constructor for the AbortEventError.
func NewAbortEventError(origErr error) error {
	return &AbortEventError{origErr: origErr}
}

// Error delegates the call to the underlying error.
func (e *AbortEventError) Error() string {
	return "event aborted: " + e.origErr.Error()
}

// GetOriginalError returns the underlying error.
func (e *AbortEventError) GetOriginalError() error {
	return e.origErr
}

// IsFatalError returns true if err is, or wraps (see errors.Wrap), FatalError.
func IsFatalError(err error) bool {
	_, isFatal := errors.Cause(err).(*FatalError)
	return isFatal
}

// IsAbortEventError returns true if err is, or wraps, AbortEventError.
func IsAbortEventError(err error) bool {
	_, isAbort := errors.Cause(err).(*AbortEventError)
	return isAbort
}
