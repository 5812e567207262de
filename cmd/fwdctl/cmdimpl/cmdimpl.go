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

package cmdimpl

import (
	"fmt"
	"io"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/cobaal/fwdsync/cmd/fwdctl/remote"
	"github.com/cobaal/fwdsync/plugins/controller"
	"github.com/cobaal/fwdsync/plugins/flowrule"
	"github.com/cobaal/fwdsync/plugins/fwdsync"
	"github.com/cobaal/fwdsync/plugins/topology"
	"github.com/cobaal/fwdsync/plugins/topology/model"
)

const timeFormat = "15:04:05.000"

// Client is the REST client used by the commands.
type Client interface {
	GetJSON(path string, out interface{}) error
	Post(path string) ([]byte, error)
}

var _ Client = (*remote.HTTPClient)(nil)

// PrintHistory prints the event history of the agent, optionally only
// the last n events.
func PrintHistory(client Client, out io.Writer, last int) error {
	path := controller.EventHistoryURL
	if last > 0 {
		path += "?last=" + strconv.Itoa(last)
	}
	var history []*controller.EventRecord
	if err := client.GetJSON(path, &history); err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "SEQ\tEVENT\tMETHOD\tSTART\tDURATION\tHANDLERS\tERRORS")
	for _, record := range history {
		var handlers, errs []string
		for _, handler := range record.Handlers {
			handlers = append(handlers, handler.Handler)
			if handler.ErrorStr != "" {
				errs = append(errs, handler.Handler+": "+handler.ErrorStr)
			}
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%v\t%s\t%s\n",
			record.SeqNum, record.Name, record.Method,
			record.ProcessingStart.Format(timeFormat),
			record.ProcessingEnd.Sub(record.ProcessingStart).Round(time.Microsecond),
			strings.Join(handlers, ","), strings.Join(errs, "; "))
	}
	return w.Flush()
}

// Resync asks the agent to run a healing resync.
func Resync(client Client, out io.Writer) error {
	if _, err := client.Post(controller.ResyncURL); err != nil {
		return err
	}
	fmt.Fprintln(out, "Healing resync requested")
	return nil
}

// PrintRules prints installed rules, optionally only of one device.
func PrintRules(client Client, out io.Writer, device string) error {
	path := flowrule.FlowRulesURL
	if device != "" {
		path += "?device=" + url.QueryEscape(device)
	}
	var tables flowrule.Tables
	if err := client.GetJSON(path, &tables); err != nil {
		return err
	}

	var devices []string
	for id := range tables {
		devices = append(devices, string(id))
	}
	sort.Strings(devices)

	w := tabwriter.NewWriter(out, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "DEVICE\tID\tPRIORITY\tIPV4-DST\tETH-DST\tOUTPUT\tOWNER")
	for _, id := range devices {
		for _, rule := range tables[model.DeviceID(id)] {
			var dst, mac string
			if rule.Selector.IPv4Dst != nil {
				dst = rule.Selector.IPv4Dst.String()
			}
			if rule.RewriteMAC() != nil {
				mac = rule.RewriteMAC().String()
			}
			fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\t%d\t%s\n",
				id, rule.ID, rule.Priority, dst, mac, rule.Treatment.Output, rule.Owner)
		}
	}
	return w.Flush()
}

// PrintLastRun prints the report of the last reconciliation pass.
func PrintLastRun(client Client, out io.Writer) error {
	report := &fwdsync.RunReport{}
	if err := client.GetJSON(fwdsync.LastRunURL, report); err != nil {
		return err
	}

	fmt.Fprintf(out, "Trigger: %s\n", report.Trigger)
	fmt.Fprintf(out, "Summary: %v\n\n", report)

	w := tabwriter.NewWriter(out, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "SRC\tDST\tINSTALLED\tREMOVED\tPATH\tFAILURE")
	for _, pair := range report.Pairs {
		failure := string(pair.Reason)
		if pair.Error != "" {
			failure += ": " + pair.Error
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n",
			pair.Src, pair.Dst, pair.Installed, pair.Removed, pair.Path, failure)
	}
	return w.Flush()
}

// PrintTopology prints devices and links known to the agent.
func PrintTopology(client Client, out io.Writer) error {
	topo := &topology.Dump{}
	if err := client.GetJSON(topology.TopologyURL, topo); err != nil {
		return err
	}
	sort.Slice(topo.Devices, func(i, j int) bool { return topo.Devices[i].ID < topo.Devices[j].ID })

	fmt.Fprintf(out, "Topology version: %d\n\n", topo.Version)
	w := tabwriter.NewWriter(out, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "DEVICE\tAVAILABLE\tPORT\tMAC")
	for _, device := range topo.Devices {
		if len(device.Ports) == 0 {
			fmt.Fprintf(w, "%s\t%v\t\t\n", device.ID, device.Available)
		}
		for _, port := range device.Ports {
			fmt.Fprintf(w, "%s\t%v\t%d\t%s\n",
				device.ID, device.Available, port.Number, port.Annotations[topology.PortMACAnnotation])
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "LINK\tCOST")
	for _, link := range topo.Links {
		fmt.Fprintf(w, "%v\t%v\n", link, link.Cost)
	}
	return w.Flush()
}
