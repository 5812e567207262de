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

package controller

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cobaal/fwdsync/plugins/controller/api"
)

const bannerWidth = 100

// printNewEvent prints a banner about a newly received event.
func (c *Controller) printNewEvent(eventRec *EventRecord, handlers []api.EventHandler) {
	var buf strings.Builder
	buf.WriteString(strings.Repeat(">", bannerWidth) + "\n")

	descLines := strings.Split(eventRec.Description, "\n")
	fmt.Fprintf(&buf, "* %s NEW %s EVENT: %s\n", eventSeqNumToStr(eventRec.SeqNum),
		strings.ToUpper(eventRec.Method.String()), descLines[0])
	for _, line := range descLines[1:] {
		fmt.Fprintf(&buf, "*     %s\n", line)
	}
	if len(handlers) > 0 {
		fmt.Fprintf(&buf, "* HANDLERS: %s\n", evHandlersToStr(handlers))
	}

	buf.WriteString(strings.Repeat(">", bannerWidth) + "\n")
	fmt.Fprint(c.out, buf.String())
}

// printFinalizedEvent prints a banner about a finalized event, including
// the change or the error reported by every handler.
func (c *Controller) printFinalizedEvent(eventRec *EventRecord) {
	var buf strings.Builder
	buf.WriteString(strings.Repeat("<", bannerWidth) + "\n")

	duration := eventRec.ProcessingEnd.Sub(eventRec.ProcessingStart).Round(time.Millisecond)
	fmt.Fprintf(&buf, "* %s FINALIZED EVENT: %s (took %v)\n", eventSeqNumToStr(eventRec.SeqNum),
		strings.Split(eventRec.Description, "\n")[0], duration)
	if len(eventRec.Handlers) == 0 {
		buf.WriteString("* NOT HANDLED\n")
	}
	for _, handlerRec := range eventRec.Handlers {
		switch {
		case handlerRec.Error != nil:
			fmt.Fprintf(&buf, "* %s: ERROR: %v\n", handlerRec.Handler, handlerRec.Error)
		case handlerRec.Change != "":
			fmt.Fprintf(&buf, "* %s: %s\n", handlerRec.Handler, handlerRec.Change)
		default:
			fmt.Fprintf(&buf, "* %s: done\n", handlerRec.Handler)
		}
	}

	buf.WriteString(strings.Repeat("<", bannerWidth) + "\n")
	fmt.Fprint(c.out, buf.String())
}

// filterHandlersForEvent returns only those handlers that are actually interested in the event.
func filterHandlersForEvent(event api.Event, handlers []api.EventHandler) []api.EventHandler {
	var filteredHandlers []api.EventHandler
	for _, handler := range handlers {
		if handler.HandlesEvent(event) {
			filteredHandlers = append(filteredHandlers, handler)
		}
	}
	return filteredHandlers
}

// evHandlersToStr returns a string representing a list of event handlers.
func evHandlersToStr(handlers []api.EventHandler) string {
	var handlerStr []string
	for _, handler := range handlers {
		handlerStr = append(handlerStr, handler.String())
	}
	return strings.Join(handlerStr, ", ")
}

// eventSeqNumToStr returns string representing event sequence number.
func eventSeqNumToStr(seqNum uint64) string {
	return "#" + strconv.FormatUint(seqNum, 10)
}
