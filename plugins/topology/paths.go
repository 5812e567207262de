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

package topology

import (
	"github.com/cobaal/fwdsync/plugins/topology/model"
)

// EnumeratePaths returns all simple (loop-free) paths from src to dst.
// With maxHops > 0, longer paths are not explored.
func EnumeratePaths(topo *Snapshot, src, dst model.DeviceID, maxHops int) []*model.Path {
	if topo == nil || src == dst {
		return nil
	}
	var (
		paths   []*model.Path
		stack   []*model.Link
		visited = map[model.DeviceID]bool{src: true}
	)

	var walk func(device model.DeviceID)
	walk = func(device model.DeviceID) {
		if maxHops > 0 && len(stack) >= maxHops {
			return
		}
		for _, link := range topo.LinksFrom(device) {
			next := link.Dst.Device
			if visited[next] {
				continue
			}
			stack = append(stack, link)
			if next == dst {
				paths = append(paths, model.NewPath(append([]*model.Link{}, stack...)...))
			} else {
				visited[next] = true
				walk(next)
				visited[next] = false
			}
			stack = stack[:len(stack)-1]
		}
	}
	walk(src)
	return paths
}
