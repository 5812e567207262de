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
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/unrolled/render"

	"github.com/cobaal/fwdsync/plugins/controller/api"
)

const (
	// prefix used for REST urls of the controller.
	urlPrefix = "/controller/"

	// EventHistoryURL is URL used to obtain the event history.
	EventHistoryURL = urlPrefix + "event-history"

	// event-history arguments (by precedence):
	//   * seq-num
	//   * since - until (Unix timestamps)
	//   * from - to (sequence numbers)
	//   * first (max. number of oldest records to return)
	//   * last (max. number of latest records to return)
	seqNumArg = "seq-num"
	sinceArg  = "since"
	untilArg  = "until"
	fromArg   = "from"
	toArg     = "to"
	firstArg  = "first"
	lastArg   = "last"

	// ResyncURL is URL used to trigger a healing resync.
	ResyncURL = urlPrefix + "resync"
)

var errNoSuchEvent = errors.New("event with such sequence number is not recorded")

// errorString wraps string representation of an error that, unlike the original
// error, can be marshalled.
type errorString struct {
	Error string
}

// registerHandlers registers all supported REST APIs.
func (c *Controller) registerHandlers() {
	if c.HTTPHandlers == nil {
		c.Log.Warn("No http handler provided, skipping registration of Controller REST handlers")
		return
	}
	c.HTTPHandlers.RegisterHTTPHandler(EventHistoryURL, c.eventHistoryGetHandler, "GET")
	c.HTTPHandlers.RegisterHTTPHandler(ResyncURL, c.resyncReqHandler, "POST")
}

// eventHistoryGetHandler is the GET handler for "event-history" API.
func (c *Controller) eventHistoryGetHandler(formatter *render.Render) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		evHistory, err := filterEventHistory(c.GetEventHistory(), req.URL.Query())
		switch {
		case err == errNoSuchEvent:
			formatter.JSON(w, http.StatusNotFound, errorString{err.Error()})
		case err != nil:
			formatter.JSON(w, http.StatusBadRequest, errorString{err.Error()})
		case len(evHistory) == 1 && req.URL.Query().Get(seqNumArg) != "":
			formatter.JSON(w, http.StatusOK, evHistory[0])
		default:
			formatter.JSON(w, http.StatusOK, evHistory)
		}
	}
}

// filterEventHistory selects records from the history based on the request
// arguments. The first argument present, in order of precedence, wins.
func filterEventHistory(history []*EventRecord, args url.Values) ([]*EventRecord, error) {
	ints := make(map[string]int)
	for _, name := range []string{seqNumArg, fromArg, toArg, firstArg, lastArg} {
		if value, ok := singleArg(args, name); ok {
			n, err := strconv.Atoi(value)
			if err != nil {
				return nil, err
			}
			ints[name] = n
		}
	}
	times := make(map[string]time.Time)
	for _, name := range []string{sinceArg, untilArg} {
		if value, ok := singleArg(args, name); ok {
			t, err := stringToTime(value)
			if err != nil {
				return nil, err
			}
			times[name] = t
		}
	}

	if seqNum, ok := ints[seqNumArg]; ok {
		for _, record := range history {
			if record.SeqNum == uint64(seqNum) {
				return []*EventRecord{record}, nil
			}
		}
		return nil, errNoSuchEvent
	}

	if len(times) > 0 {
		since, hasSince := times[sinceArg]
		until, hasUntil := times[untilArg]
		return selectRecords(history, func(r *EventRecord) bool {
			return !(hasSince && r.ProcessingStart.Before(since)) &&
				!(hasUntil && r.ProcessingStart.After(until))
		}), nil
	}

	from, hasFrom := ints[fromArg]
	to, hasTo := ints[toArg]
	if hasFrom && hasTo {
		return selectRecords(history, func(r *EventRecord) bool {
			return r.SeqNum >= uint64(from) && r.SeqNum <= uint64(to)
		}), nil
	}

	if first, ok := ints[firstArg]; ok {
		return history[:clamp(first, len(history))], nil
	}
	if last, ok := ints[lastArg]; ok {
		return history[len(history)-clamp(last, len(history)):], nil
	}
	return history, nil
}

func singleArg(args url.Values, name string) (string, bool) {
	if param := args[name]; len(param) == 1 {
		return param[0], true
	}
	return "", false
}

func selectRecords(history []*EventRecord, match func(*EventRecord) bool) []*EventRecord {
	var selected []*EventRecord
	for _, record := range history {
		if match(record) {
			selected = append(selected, record)
		}
	}
	return selected
}

func clamp(n, max int) int {
	if n < 0 {
		return 0
	}
	if n > max {
		return max
	}
	return n
}

// resyncReqHandler is the POST handler for "resync" API.
func (c *Controller) resyncReqHandler(formatter *render.Render) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := c.PushEvent(&api.HealingResync{Type: api.Requested})
		if err != nil {
			formatter.JSON(w, http.StatusInternalServerError, errorString{err.Error()})
			return
		}
		formatter.JSON(w, http.StatusOK, "Resync request was successfully dispatched.")
	}
}

// stringToTime converts Unix timestamp from string to time.Time.
func stringToTime(s string) (time.Time, error) {
	sec, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(sec, 0), nil
}
