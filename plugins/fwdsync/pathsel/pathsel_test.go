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

package pathsel

import (
	"testing"

	. "github.com/onsi/gomega"
	"github.com/pkg/errors"

	"github.com/cobaal/fwdsync/plugins/topology"
	"github.com/cobaal/fwdsync/plugins/topology/model"
)

// staticPaths returns the configured paths in the configured order.
type staticPaths struct {
	paths []*model.Path
	err   error
}

func (sp *staticPaths) GetPaths(topo *topology.Snapshot, src, dst model.DeviceID) ([]*model.Path, error) {
	return sp.paths, sp.err
}

func link(src model.DeviceID, srcPort model.PortNumber, dst model.DeviceID, dstPort model.PortNumber, cost float64) *model.Link {
	return &model.Link{
		Src:  model.ConnectPoint{Device: src, Port: srcPort},
		Dst:  model.ConnectPoint{Device: dst, Port: dstPort},
		Cost: cost,
	}
}

func TestCheapestPath(t *testing.T) {
	RegisterTestingT(t)

	long := model.NewPath(link("of:0001", 2, "of:0004", 1, 5), link("of:0004", 2, "of:0003", 2, 1))
	short := model.NewPath(link("of:0001", 1, "of:0002", 1, 1), link("of:0002", 2, "of:0003", 1, 1))
	s := &Selector{Paths: &staticPaths{paths: []*model.Path{long, short}}}

	path, err := s.SelectPath(nil, "of:0001", "of:0003")
	Expect(err).To(BeNil())
	Expect(path).To(Equal(short))
}

func TestEqualCostTieBreak(t *testing.T) {
	RegisterTestingT(t)

	viaFour := model.NewPath(link("of:0001", 2, "of:0004", 1, 1), link("of:0004", 2, "of:0003", 2, 1))
	viaTwo := model.NewPath(link("of:0001", 1, "of:0002", 1, 1), link("of:0002", 2, "of:0003", 1, 1))

	// the choice does not depend on the enumeration order
	for _, order := range [][]*model.Path{{viaFour, viaTwo}, {viaTwo, viaFour}} {
		s := &Selector{Paths: &staticPaths{paths: order}}
		path, err := s.SelectPath(nil, "of:0001", "of:0003")
		Expect(err).To(BeNil())
		Expect(path).To(Equal(viaTwo))
	}
}

func TestNoPath(t *testing.T) {
	RegisterTestingT(t)

	s := &Selector{Paths: &staticPaths{}}
	_, err := s.SelectPath(nil, "of:0001", "of:0003")
	Expect(errors.Cause(err)).To(Equal(ErrNoPathFound))

	s = &Selector{Paths: &staticPaths{paths: []*model.Path{model.NewPath()}}}
	_, err = s.SelectPath(nil, "of:0001", "of:0003")
	Expect(errors.Cause(err)).To(Equal(ErrNoPathFound))

	s = &Selector{Paths: &staticPaths{err: errors.New("topology unavailable")}}
	_, err = s.SelectPath(nil, "of:0001", "of:0003")
	Expect(err).To(HaveOccurred())
	Expect(errors.Cause(err)).ToNot(Equal(ErrNoPathFound))
}

func TestSelfPair(t *testing.T) {
	RegisterTestingT(t)

	s := &Selector{Paths: &staticPaths{}}
	_, err := s.SelectPath(nil, "of:0001", "of:0001")
	Expect(errors.Cause(err)).To(Equal(ErrSelfPair))
}
