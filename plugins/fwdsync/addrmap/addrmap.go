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

package addrmap

import (
	"math"
	"net"
	"strconv"
	"strings"

	"github.com/apparentlymart/go-cidr/cidr"
	"github.com/pkg/errors"

	"github.com/cobaal/fwdsync/plugins/topology/model"
)

const (
	// DefaultBaseSubnet is the subnet device addresses are allocated from.
	DefaultBaseSubnet = "10.0.0.0/8"

	// hostPrefixLen is the mask length of a device address match.
	hostPrefixLen = 32
)

var (
	// ErrMalformedDeviceID is returned when the device ID has no numeric
	// (base-16) suffix after the last colon.
	ErrMalformedDeviceID = errors.New("malformed device ID")

	// ErrAddressOutOfRange is returned when the numeric suffix of the device ID
	// does not fit into the base subnet.
	ErrAddressOutOfRange = errors.New("device ordinal out of the base subnet range")
)

// Mapper derives an IPv4 address from a device ID.
type Mapper struct {
	base *net.IPNet
}

// NewMapper returns a mapper allocating addresses from the given IPv4 subnet.
func NewMapper(baseSubnet string) (*Mapper, error) {
	_, base, err := net.ParseCIDR(baseSubnet)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid base subnet %q", baseSubnet)
	}
	if base.IP.To4() == nil {
		return nil, errors.Errorf("base subnet %s is not IPv4", baseSubnet)
	}
	return &Mapper{base: base}, nil
}

// AddressFor returns the address of the device: the numeric suffix of the ID
// (after the last colon, parsed as base-16) added to the base subnet.
func (m *Mapper) AddressFor(device model.DeviceID) (net.IP, error) {
	ordinal, err := ordinalOf(device)
	if err != nil {
		return nil, err
	}
	if ordinal > math.MaxInt32 {
		return nil, errors.Wrapf(ErrAddressOutOfRange, "device %s (ordinal %d, subnet %s)",
			device, ordinal, m.base)
	}
	ip, err := cidr.Host(m.base, int(ordinal))
	if err != nil {
		return nil, errors.Wrapf(ErrAddressOutOfRange, "device %s: %v", device, err)
	}
	return ip.To4(), nil
}

// PrefixFor returns the exact (/32) match prefix of the device address.
func (m *Mapper) PrefixFor(device model.DeviceID) (*net.IPNet, error) {
	ip, err := m.AddressFor(device)
	if err != nil {
		return nil, err
	}
	return &net.IPNet{IP: ip, Mask: net.CIDRMask(hostPrefixLen, hostPrefixLen)}, nil
}

// IsMalformed returns true for errors which mean that no address can be
// derived from the device ID.
func IsMalformed(err error) bool {
	cause := errors.Cause(err)
	return cause == ErrMalformedDeviceID || cause == ErrAddressOutOfRange
}

func ordinalOf(device model.DeviceID) (uint64, error) {
	id := string(device)
	suffix := id[strings.LastIndex(id, ":")+1:]
	if suffix == "" {
		return 0, errors.Wrapf(ErrMalformedDeviceID, "device %q", id)
	}
	ordinal, err := strconv.ParseUint(suffix, 16, 64)
	if err != nil {
		return 0, errors.Wrapf(ErrMalformedDeviceID, "device %q: %v", id, err)
	}
	return ordinal, nil
}
