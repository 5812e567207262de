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
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ligato/cn-infra/health/statuscheck"
	"github.com/ligato/cn-infra/infra"
	"github.com/ligato/cn-infra/rpc/rest"
	"github.com/pkg/errors"

	"github.com/cobaal/fwdsync/plugins/controller/api"
)

const (
	// how many events can be buffered at most
	eventQueueSize = 1000

	// by default, the last 100 processed events are kept in the history
	defaultEventHistorySize = 100

	// by default, periodic healing is disabled
	defaultEnablePeriodicHealing = false

	// by default, when enabled, periodic healing will run once every minute
	defaultPeriodicHealingInterval = time.Minute

	// by default, failed event processing is not followed by a healing resync,
	// the next event re-does the work anyway
	defaultEnableHealingAfterError = false

	// by default, when enabled, healing resync will start 5 seconds after
	// a failed event processing
	defaultDelayAfterErrorHealing = 5 * time.Second
)

// Controller implements the single event loop of the agent.
//
// Events are represented by instances of the api.Event interface. A new event
// can be pushed into the loop for processing via the PushEvent method
// from the api.EventLoop interface, implemented by the Controller plugin.
// Events are processed strictly one at a time, in the order of arrival.
//
// Events implementing api.CoalescableEvent are merged while they wait
// in the queue: if an event with the same coalesce key is already queued
// (and its processing has not started yet), the new event is dropped
// and its Done method is called with nil. An event arriving while an
// equivalent event is being processed is queued normally.
//
// For a plugin to become a handler for one or more events, it has to implement
// the api.EventHandler interface. The set of event handlers is passed to Controller
// via EventHandlers attribute from Deps. Handlers are called in the order
// of the array, but only those that return true from HandlesEvent.
//
// The first event processed is always api.StartupResync, pushed by the Controller
// itself from AfterInit. Events pushed before are delayed until after
// the startup resync.
//
// The handler may return error wrapped in either:
//   - api.FatalError to signal that the agent should be terminated, or
//   - api.AbortEventError to signal that the event should not be passed
//     to the remaining handlers.
//
// Any other error is recorded and, if enabled, followed by a healing resync.
type Controller struct {
	Deps

	config *Config

	evLoopGID     atomic.Value   // ID of the go routine running the event loop
	delayedEvents []*QueuedEvent // events delayed until after the startup resync
	eventQueue    chan *QueuedEvent

	pendingLock sync.Mutex
	pending     map[string]struct{} // coalesce keys of queued events

	healingScheduled bool
	resyncCount      int
	evSeqNum         uint64

	historyLock  sync.Mutex
	eventHistory []*EventRecord

	out io.Writer // event banners

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// Deps lists dependencies of the Controller.
type Deps struct {
	infra.PluginDeps

	StatusCheck  statuscheck.PluginStatusWriter // optional
	HTTPHandlers rest.HTTPHandlers              // optional

	EventHandlers []api.EventHandler
}

// Config holds the Controller configuration.
type Config struct {
	// history
	EventHistorySize int `json:"event-history-size"`

	// healing
	EnablePeriodicHealing   bool          `json:"enable-periodic-healing"`
	PeriodicHealingInterval time.Duration `json:"periodic-healing-interval"`
	EnableHealingAfterError bool          `json:"enable-healing-after-error"`
	DelayAfterErrorHealing  time.Duration `json:"delay-after-error-healing"`
}

// EventRecord is a record of a processed event, added into the history of events,
// available via REST interface.
type EventRecord struct {
	SeqNum          uint64
	Name            string
	Description     string
	Method          api.EventMethodType
	Handlers        []*EventHandlingRecord
	ProcessingStart time.Time
	ProcessingEnd   time.Time
}

// EventHandlingRecord is a record of an event being handled by a given handler.
type EventHandlingRecord struct {
	Handler  string
	Change   string // change description for update events
	Error    error  `json:"-"` // nil if none
	ErrorStr string // string representation of the error (if any)
}

// QueuedEvent wraps event for the event queue.
type QueuedEvent struct {
	event       api.Event
	coalesceKey string // empty if the event is not coalescable
}

var (
	// ErrClosedController is returned when Controller is used when it is already closed.
	ErrClosedController = errors.New("controller was closed")
	// ErrEventQueueFull is returned when queue for events is full.
	ErrEventQueueFull = errors.New("queue with events is full")
	// ErrBlockingEventFromLoop is returned when a blocking event is sent from
	// within the event loop, which would deadlock.
	ErrBlockingEventFromLoop = errors.New("deadlock detected - blocking event sent from within the event loop")
)

// Init loads config file and starts the event loop.
func (c *Controller) Init() error {
	// initialize attributes
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.eventQueue = make(chan *QueuedEvent, eventQueueSize)
	c.pending = make(map[string]struct{})
	c.evLoopGID.Store("")
	if c.out == nil {
		c.out = os.Stdout
	}

	// default configuration
	c.config = &Config{
		EventHistorySize:        defaultEventHistorySize,
		EnablePeriodicHealing:   defaultEnablePeriodicHealing,
		PeriodicHealingInterval: defaultPeriodicHealingInterval,
		EnableHealingAfterError: defaultEnableHealingAfterError,
		DelayAfterErrorHealing:  defaultDelayAfterErrorHealing,
	}

	// load configuration
	err := c.loadConfig(c.config)
	if err != nil {
		c.Log.Error(err)
	}
	c.Log.Infof("Controller configuration: %+v", *c.config)

	// register controller with status check
	if c.StatusCheck != nil {
		c.StatusCheck.Register(c.PluginName, nil)
	}

	// start event loop
	c.wg.Add(1)
	go c.eventLoop()

	// register REST API handlers
	c.registerHandlers()
	return nil
}

// AfterInit triggers the startup resync. All the handlers are already initialized
// at this point.
func (c *Controller) AfterInit() error {
	return c.PushEvent(&api.StartupResync{})
}

// PushEvent adds the given event into the queue for processing.
func (c *Controller) PushEvent(event api.Event) error {
	if event.IsBlocking() && c.evLoopGID.Load() == getGID() {
		return ErrBlockingEventFromLoop
	}

	var key string
	if coalescable, isCoalescable := event.(api.CoalescableEvent); isCoalescable {
		key = coalescable.CoalesceKey()
		c.pendingLock.Lock()
		if _, isPending := c.pending[key]; isPending {
			c.pendingLock.Unlock()
			c.Log.Debugf("Event %s merged with an already queued one", event.GetName())
			event.Done(nil)
			return nil
		}
		c.pending[key] = struct{}{}
		c.pendingLock.Unlock()
	}

	select {
	case <-c.ctx.Done():
		c.clearPending(key)
		return ErrClosedController
	case c.eventQueue <- &QueuedEvent{event: event, coalesceKey: key}:
		return nil
	default:
		c.clearPending(key)
		return ErrEventQueueFull
	}
}

// clearPending removes the mark of a queued coalescable event.
func (c *Controller) clearPending(key string) {
	if key == "" {
		return
	}
	c.pendingLock.Lock()
	delete(c.pending, key)
	c.pendingLock.Unlock()
}

// periodicHealing triggers periodic resync from a separate go routine.
func (c *Controller) periodicHealing() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-time.After(c.config.PeriodicHealingInterval):
			err := c.PushEvent(&api.HealingResync{Type: api.Periodic})
			if err != nil {
				c.Log.Warnf("Failed to trigger periodic healing resync: %v", err)
			}
		}
	}
}

// eventLoop implements the main event loop.
func (c *Controller) eventLoop() {
	defer c.wg.Done()
	c.evLoopGID.Store(getGID())

	for {
		select {
		case <-c.ctx.Done():
			c.drainQueue()
			return

		case event := <-c.eventQueue:
			exit := c.receiveEvent(event)
			if exit {
				c.drainQueue()
				return
			}
		}
	}
}

// drainQueue finalizes all events that will not be processed anymore,
// so that the senders of blocking events are not stuck.
func (c *Controller) drainQueue() {
	for _, qe := range c.delayedEvents {
		qe.event.Done(ErrClosedController)
	}
	c.delayedEvents = nil
	for {
		select {
		case qe := <-c.eventQueue:
			c.clearPending(qe.coalesceKey)
			qe.event.Done(ErrClosedController)
		default:
			return
		}
	}
}

// receiveEvent receives event from the event queue.
func (c *Controller) receiveEvent(qe *QueuedEvent) (exitLoop bool) {
	// handle startup resync
	if c.resyncCount == 0 {
		// StartupResync must be the first event to process
		if _, isStartup := qe.event.(*api.StartupResync); !isStartup {
			// events received before the startup resync will be replayed afterwards
			c.delayedEvents = append(c.delayedEvents, qe)
			return false
		}
		// once the startup resync is received,
		// periodic resync - if enabled - can be started
		if c.config.EnablePeriodicHealing {
			c.wg.Add(1)
			go c.periodicHealing()
		}
	}

	// process the received event + all the delayed events
	events := append([]*QueuedEvent{qe}, c.delayedEvents...)
	c.delayedEvents = nil
	for _, event := range events {
		err := c.processEvent(event)
		if err != nil {
			if api.IsFatalError(err) {
				if c.StatusCheck != nil {
					c.StatusCheck.ReportStateChange(c.PluginName, statuscheck.Error, err)
				}
				c.Log.Errorf("Event loop stopped due to a fatal error: %v", err)
				return true
			}
		}
	}
	return false
}

// processEvent processes the next event.
func (c *Controller) processEvent(qe *QueuedEvent) error {
	var (
		wasErr          error
		isHealing       bool
		periodicHealing bool
		fatalErr        bool
	)
	event := qe.event

	// 1. equivalent events arriving from now on are not covered by this run
	c.clearPending(qe.coalesceKey)

	// 2. prepare for resync
	if event.Method() == api.Resync {
		c.resyncCount++ // first resync has resyncCount == 1
		if healingResync, isHealingResync := event.(*api.HealingResync); isHealingResync {
			isHealing = true
			periodicHealing = healingResync.Type == api.Periodic
			if healingResync.Type == api.AfterError {
				c.healingScheduled = false
			}
		}
	}

	// 3. filter out handlers which are actually not interested in the event
	eventHandlers := filterHandlersForEvent(event, c.EventHandlers)

	// 4. prepare record of the event for the history
	evRecord := &EventRecord{
		SeqNum:          c.evSeqNum,
		Name:            event.GetName(),
		Description:     event.String(),
		Method:          event.Method(),
		ProcessingStart: time.Now(),
	}
	c.evSeqNum++

	// 5. print information about the new event
	c.printNewEvent(evRecord, eventHandlers)

	// 6. execute Update/Resync
	for _, handler := range eventHandlers {
		var (
			err    error
			change string
			errStr string
		)
		if event.Method() == api.Update {
			change, err = handler.Update(event)
		} else {
			err = handler.Resync(event, c.resyncCount)
		}
		if err != nil {
			errStr = err.Error()
			wasErr = err
		}

		// record operation
		evRecord.Handlers = append(evRecord.Handlers, &EventHandlingRecord{
			Handler:  handler.String(),
			Change:   change,
			Error:    err,
			ErrorStr: errStr,
		})

		// check if error allows to continue
		if err != nil {
			fatalErr = api.IsFatalError(err)
			if fatalErr || api.IsAbortEventError(err) {
				break
			}
		}
	}

	// 7. finalize event processing
	evRecord.ProcessingEnd = time.Now()
	c.printFinalizedEvent(evRecord)
	c.recordEvent(evRecord)
	event.Done(wasErr)

	// 8. if processing failed, schedule healing resync (if enabled);
	//    a failed healing resync does not schedule another one
	if wasErr != nil && !fatalErr && c.config.EnableHealingAfterError &&
		!c.healingScheduled && !(isHealing && !periodicHealing) {
		c.wg.Add(1)
		go c.scheduleHealing(wasErr)
		c.healingScheduled = true
	}

	// 9. report state after the startup resync
	if c.resyncCount == 1 && event.Method() == api.Resync && c.StatusCheck != nil && !fatalErr {
		c.StatusCheck.ReportStateChange(c.PluginName, statuscheck.OK, nil)
	}

	if fatalErr {
		return wasErr
	}
	return nil
}

// recordEvent adds the event record into the history, dropping the oldest
// records over the configured limit.
func (c *Controller) recordEvent(evRecord *EventRecord) {
	c.historyLock.Lock()
	defer c.historyLock.Unlock()

	c.eventHistory = append(c.eventHistory, evRecord)
	if limit := c.config.EventHistorySize; limit > 0 && len(c.eventHistory) > limit {
		c.eventHistory = append([]*EventRecord{}, c.eventHistory[len(c.eventHistory)-limit:]...)
	}
}

// GetEventHistory returns a copy of the recorded event history.
func (c *Controller) GetEventHistory() []*EventRecord {
	c.historyLock.Lock()
	defer c.historyLock.Unlock()
	return append([]*EventRecord{}, c.eventHistory...)
}

// Close stops event loop.
func (c *Controller) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	return nil
}

// loadConfig loads configuration file.
func (c *Controller) loadConfig(config *Config) error {
	if c.Cfg == nil {
		return nil
	}
	found, err := c.Cfg.LoadValue(config)
	if err != nil {
		return err
	} else if !found {
		c.Log.Debugf("%v config not found", c.PluginName)
		return nil
	}
	c.Log.Debugf("%v config found: %+v", c.PluginName, config)

	return err
}

// scheduleHealing is triggered to schedule Healing resync to run after a configurable
// time period.
func (c *Controller) scheduleHealing(afterErr error) {
	defer c.wg.Done()

	select {
	case <-c.ctx.Done():
		return

	case <-time.After(c.config.DelayAfterErrorHealing):
		err := c.PushEvent(&api.HealingResync{Type: api.AfterError, Error: afterErr})
		if err != nil {
			c.Log.Warnf("Failed to trigger Healing resync: %v", err)
		}
	}
}

// getGID returns the current go routine ID as string.
func getGID() string {
	goroutineLabel := []byte("goroutine ")
	b := make([]byte, 64)
	b = b[:runtime.Stack(b, false)]
	if !bytes.HasPrefix(b, goroutineLabel) {
		return "unknown"
	}
	b = bytes.TrimPrefix(b, goroutineLabel)
	b = b[:bytes.IndexByte(b, ' ')]
	return string(b)
}

// String returns a summary of the event record.
func (r *EventRecord) String() string {
	return fmt.Sprintf("%s %s (%s)", eventSeqNumToStr(r.SeqNum), r.Name, r.Method)
}
