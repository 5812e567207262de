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
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ligato/cn-infra/infra"
	"github.com/ligato/cn-infra/logging"
	. "github.com/onsi/gomega"
	"github.com/pkg/errors"

	"github.com/cobaal/fwdsync/plugins/controller/api"
)

var controllerCount uint32

// changeEvent is a coalescable update used by the tests.
type changeEvent struct {
	id int
}

func (ev *changeEvent) GetName() string             { return "Change" }
func (ev *changeEvent) String() string              { return fmt.Sprintf("Change #%d", ev.id) }
func (ev *changeEvent) Method() api.EventMethodType { return api.Update }
func (ev *changeEvent) IsBlocking() bool            { return false }
func (ev *changeEvent) Done(error)                  {}
func (ev *changeEvent) CoalesceKey() string         { return "change" }

// plainEvent is a non-coalescable update.
type plainEvent struct {
	id int
}

func (ev *plainEvent) GetName() string             { return "Plain" }
func (ev *plainEvent) String() string              { return fmt.Sprintf("Plain #%d", ev.id) }
func (ev *plainEvent) Method() api.EventMethodType { return api.Update }
func (ev *plainEvent) IsBlocking() bool            { return false }
func (ev *plainEvent) Done(error)                  {}

type mockHandler struct {
	sync.Mutex

	name      string
	received  []string
	resyncs   int
	updates   int
	gate      chan struct{} // Update waits for it if not nil
	entered   chan struct{}
	updateErr error
	loop      api.EventLoop
	loopErr   error
}

func newMockHandler(name string) *mockHandler {
	return &mockHandler{name: name, entered: make(chan struct{}, 100)}
}

func (h *mockHandler) String() string {
	return h.name
}

func (h *mockHandler) HandlesEvent(event api.Event) bool {
	return true
}

func (h *mockHandler) Resync(event api.Event, resyncCount int) error {
	h.Lock()
	defer h.Unlock()
	h.resyncs++
	h.received = append(h.received, event.GetName())
	return nil
}

func (h *mockHandler) Update(event api.Event) (string, error) {
	h.entered <- struct{}{}
	h.Lock()
	gate := h.gate
	h.Unlock()
	if gate != nil {
		<-gate
	}

	h.Lock()
	defer h.Unlock()
	h.updates++
	h.received = append(h.received, event.String())
	if _, isShutdown := event.(*api.Shutdown); isShutdown && h.loop != nil {
		h.loopErr = h.loop.PushEvent(api.NewShutdownEvent())
	}
	return "updated", h.updateErr
}

func (h *mockHandler) updateCount() int {
	h.Lock()
	defer h.Unlock()
	return h.updates
}

func (h *mockHandler) receivedEvents() []string {
	h.Lock()
	defer h.Unlock()
	return append([]string{}, h.received...)
}

func newTestController(handlers ...api.EventHandler) *Controller {
	name := fmt.Sprintf("controller-test-%d", atomic.AddUint32(&controllerCount, 1))
	return &Controller{
		Deps: Deps{
			PluginDeps: infra.PluginDeps{
				PluginName: infra.PluginName(name),
				Log:        logging.ForPlugin(name),
			},
			EventHandlers: handlers,
		},
	}
}

func TestStartupResyncGoesFirst(t *testing.T) {
	RegisterTestingT(t)

	handler := newMockHandler("handler")
	c := newTestController(handler)
	Expect(c.Init()).To(Succeed())
	defer c.Close()

	// pushed before the startup resync -> delayed
	Expect(c.PushEvent(&plainEvent{id: 1})).To(Succeed())
	Consistently(handler.updateCount, 100*time.Millisecond).Should(Equal(0))

	Expect(c.AfterInit()).To(Succeed())
	Eventually(handler.receivedEvents).Should(Equal([]string{"Startup Resync", "Plain #1"}))
}

func TestCoalescing(t *testing.T) {
	RegisterTestingT(t)

	handler := newMockHandler("handler")
	c := newTestController(handler)
	Expect(c.Init()).To(Succeed())
	Expect(c.AfterInit()).To(Succeed())
	defer c.Close()

	gate := make(chan struct{})
	handler.Lock()
	handler.gate = gate
	handler.Unlock()

	// the first change is being processed...
	Expect(c.PushEvent(&changeEvent{id: 1})).To(Succeed())
	Eventually(handler.entered).Should(Receive())

	// ...one more is queued and all the others merge with it
	for i := 2; i <= 5; i++ {
		Expect(c.PushEvent(&changeEvent{id: i})).To(Succeed())
	}
	close(gate)

	Eventually(handler.updateCount).Should(Equal(2))
	Consistently(handler.updateCount, 100*time.Millisecond).Should(Equal(2))
	Expect(handler.receivedEvents()).To(Equal([]string{"Startup Resync", "Change #1", "Change #2"}))

	// non-coalescable events are never merged
	Expect(c.PushEvent(&plainEvent{id: 1})).To(Succeed())
	Expect(c.PushEvent(&plainEvent{id: 2})).To(Succeed())
	Eventually(handler.updateCount).Should(Equal(4))
}

func TestBlockingEventFromLoop(t *testing.T) {
	RegisterTestingT(t)

	handler := newMockHandler("handler")
	c := newTestController(handler)
	handler.loop = c
	Expect(c.Init()).To(Succeed())
	Expect(c.AfterInit()).To(Succeed())
	defer c.Close()

	shutdown := api.NewShutdownEvent()
	Expect(c.PushEvent(shutdown)).To(Succeed())
	Expect(shutdown.Wait()).To(Succeed())

	handler.Lock()
	defer handler.Unlock()
	Expect(handler.loopErr).To(Equal(ErrBlockingEventFromLoop))
}

func TestHandlerErrors(t *testing.T) {
	RegisterTestingT(t)

	handler := newMockHandler("handler")
	handler.updateErr = errors.New("rule store rejected the rule")
	second := newMockHandler("second")
	c := newTestController(handler, second)
	Expect(c.Init()).To(Succeed())
	Expect(c.AfterInit()).To(Succeed())
	defer c.Close()

	// non-fatal error -> the event still reaches the other handlers
	shutdown := api.NewShutdownEvent()
	Expect(c.PushEvent(shutdown)).To(Succeed())
	Expect(shutdown.Wait()).To(MatchError("rule store rejected the rule"))
	Expect(second.updateCount()).To(Equal(1))

	// abort -> the remaining handlers are skipped
	handler.Lock()
	handler.updateErr = api.NewAbortEventError(errors.New("abort"))
	handler.Unlock()
	shutdown = api.NewShutdownEvent()
	Expect(c.PushEvent(shutdown)).To(Succeed())
	Expect(shutdown.Wait()).To(HaveOccurred())
	Expect(second.updateCount()).To(Equal(1))

	// fatal -> the event loop stops
	handler.Lock()
	handler.updateErr = errors.Wrap(api.NewFatalError(errors.New("table corrupted")), "handler")
	handler.Unlock()
	Expect(c.PushEvent(&plainEvent{id: 1})).To(Succeed())
	Eventually(handler.updateCount).Should(Equal(3))
	Expect(c.PushEvent(&plainEvent{id: 2})).To(Succeed())
	Consistently(handler.updateCount, 100*time.Millisecond).Should(Equal(3))

	c.historyLock.Lock()
	defer c.historyLock.Unlock()
	last := c.eventHistory[len(c.eventHistory)-1]
	Expect(last.Name).To(Equal("Plain"))
	Expect(last.Handlers).To(HaveLen(1))
	Expect(last.Handlers[0].ErrorStr).To(Equal("handler: fatal: table corrupted"))
}

func TestPushAfterClose(t *testing.T) {
	RegisterTestingT(t)

	c := newTestController(newMockHandler("handler"))
	Expect(c.Init()).To(Succeed())
	Expect(c.Close()).To(Succeed())
	Expect(c.PushEvent(&plainEvent{id: 1})).To(Equal(ErrClosedController))
}

func TestEventHistory(t *testing.T) {
	RegisterTestingT(t)

	handler := newMockHandler("handler")
	c := newTestController(handler)
	Expect(c.Init()).To(Succeed())
	c.config.EventHistorySize = 3
	Expect(c.AfterInit()).To(Succeed())
	defer c.Close()

	for i := 1; i <= 4; i++ {
		Expect(c.PushEvent(&plainEvent{id: i})).To(Succeed())
	}
	Eventually(handler.updateCount).Should(Equal(4))

	c.historyLock.Lock()
	history := append([]*EventRecord{}, c.eventHistory...)
	c.historyLock.Unlock()

	// startup resync + 4 updates, only the last 3 kept
	Expect(history).To(HaveLen(3))
	Expect(history[0].SeqNum).To(BeEquivalentTo(2))
	Expect(history[2].Description).To(Equal("Plain #4"))

	selected, err := filterEventHistory(history, url.Values{seqNumArg: {"3"}})
	Expect(err).To(BeNil())
	Expect(selected).To(HaveLen(1))
	Expect(selected[0].Description).To(Equal("Plain #3"))

	_, err = filterEventHistory(history, url.Values{seqNumArg: {"0"}})
	Expect(err).To(Equal(errNoSuchEvent))

	selected, err = filterEventHistory(history, url.Values{fromArg: {"3"}, toArg: {"4"}})
	Expect(err).To(BeNil())
	Expect(selected).To(HaveLen(2))

	selected, err = filterEventHistory(history, url.Values{lastArg: {"10"}})
	Expect(err).To(BeNil())
	Expect(selected).To(HaveLen(3))

	selected, err = filterEventHistory(history, url.Values{firstArg: {"1"}})
	Expect(err).To(BeNil())
	Expect(selected[0].SeqNum).To(BeEquivalentTo(2))

	_, err = filterEventHistory(history, url.Values{firstArg: {"x"}})
	Expect(err).To(HaveOccurred())
}

func TestEventBanners(t *testing.T) {
	RegisterTestingT(t)

	handler := newMockHandler("handler")
	c := newTestController(handler)
	out := &bytes.Buffer{}
	c.out = out
	Expect(c.Init()).To(Succeed())
	Expect(c.AfterInit()).To(Succeed())

	handler.Lock()
	handler.updateErr = errors.New("device unreachable")
	handler.Unlock()
	Expect(c.PushEvent(&plainEvent{id: 7})).To(Succeed())
	Eventually(handler.updateCount).Should(Equal(1))
	Expect(c.Close()).To(Succeed())

	Expect(out.String()).To(ContainSubstring("#0 NEW RESYNC EVENT: Startup Resync"))
	Expect(out.String()).To(ContainSubstring("#1 NEW UPDATE EVENT: Plain #7"))
	Expect(out.String()).To(ContainSubstring("#1 FINALIZED EVENT: Plain #7"))
	Expect(out.String()).To(ContainSubstring("* handler: ERROR: device unreachable"))
}
