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
	"sort"

	"github.com/pkg/errors"

	"github.com/cobaal/fwdsync/plugins/topology"
	"github.com/cobaal/fwdsync/plugins/topology/model"
)

var (
	// ErrNoPathFound is returned when the devices are not connected.
	ErrNoPathFound = errors.New("no path found")

	// ErrSelfPair is returned when a path to the device itself is requested.
	ErrSelfPair = errors.New("source and destination are the same device")
)

// PathProvider enumerates paths between devices.
type PathProvider interface {
	GetPaths(topo *topology.Snapshot, src, dst model.DeviceID) ([]*model.Path, error)
}

// Selector picks a single path for a pair of devices.
type Selector struct {
	Paths PathProvider
}

// SelectPath returns the cheapest path from src to dst. Equal-cost paths are
// ordered by the sequence of their hop identities, making the choice stable
// across runs.
func (s *Selector) SelectPath(topo *topology.Snapshot, src, dst model.DeviceID) (*model.Path, error) {
	if src == dst {
		return nil, errors.Wrapf(ErrSelfPair, "device %s", src)
	}
	paths, err := s.Paths.GetPaths(topo, src, dst)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get paths from %s to %s", src, dst)
	}
	var candidates []*model.Path
	for _, path := range paths {
		if path != nil && len(path.Links) > 0 {
			candidates = append(candidates, path)
		}
	}
	if len(candidates) == 0 {
		return nil, errors.Wrapf(ErrNoPathFound, "from %s to %s", src, dst)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return less(candidates[i], candidates[j])
	})
	return candidates[0], nil
}

func less(a, b *model.Path) bool {
	if a.Cost != b.Cost {
		return a.Cost < b.Cost
	}
	aKeys, bKeys := a.HopKeys(), b.HopKeys()
	for i := 0; i < len(aKeys) && i < len(bKeys); i++ {
		if aKeys[i] != bKeys[i] {
			return aKeys[i] < bKeys[i]
		}
	}
	return len(aKeys) < len(bKeys)
}
