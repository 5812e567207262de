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

package fwdsync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// path where the reconciliation metrics are exposed
	prometheusStatsPath = "/fwdsync/metrics"

	agentLabel   = "agent"
	triggerLabel = "trigger"
	reasonLabel  = "reason"
	opLabel      = "op"

	passesMetric           = "reconciliationPasses"
	pairFailuresMetric     = "pairFailures"
	ruleWritesMetric       = "ruleWrites"
	lastPassDurationMetric = "lastPassDurationSeconds"

	installOp = "install"
	removeOp  = "remove"
)

type metrics struct {
	passes           *prometheus.CounterVec
	pairFailures     *prometheus.CounterVec
	ruleWrites       *prometheus.CounterVec
	lastPassDuration prometheus.Gauge
}

func (p *Plugin) registerMetrics() error {
	if p.Prometheus == nil {
		return nil
	}
	err := p.Prometheus.NewRegistry(prometheusStatsPath,
		promhttp.HandlerOpts{ErrorHandling: promhttp.ContinueOnError, ErrorLog: p.Log})
	if err != nil {
		return err
	}

	constLabels := prometheus.Labels{}
	if p.ServiceLabel != nil {
		constLabels[agentLabel] = p.ServiceLabel.GetAgentLabel()
	}
	m := newMetrics(constLabels)
	for name, collector := range map[string]prometheus.Collector{
		passesMetric:           m.passes,
		pairFailuresMetric:     m.pairFailures,
		ruleWritesMetric:       m.ruleWrites,
		lastPassDurationMetric: m.lastPassDuration,
	} {
		if err := p.Prometheus.Register(prometheusStatsPath, collector); err != nil {
			p.Log.Errorf("failed to register %v metric %v", name, err)
			return err
		}
	}
	p.metrics = m
	return nil
}

func newMetrics(constLabels prometheus.Labels) *metrics {
	return &metrics{
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        passesMetric,
			Help:        "Number of full reconciliation passes",
			ConstLabels: constLabels,
		}, []string{triggerLabel}),
		pairFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        pairFailuresMetric,
			Help:        "Number of device pairs that failed to reconcile",
			ConstLabels: constLabels,
		}, []string{reasonLabel}),
		ruleWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        ruleWritesMetric,
			Help:        "Number of rules installed or removed",
			ConstLabels: constLabels,
		}, []string{opLabel}),
		lastPassDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        lastPassDurationMetric,
			Help:        "Duration of the last reconciliation pass",
			ConstLabels: constLabels,
		}),
	}
}

// observePass updates metrics with the pass results.
func (p *Plugin) observePass(report *RunReport) {
	if p.metrics == nil {
		return
	}
	p.metrics.passes.WithLabelValues(string(report.Trigger)).Inc()
	for _, pair := range report.Failures() {
		p.metrics.pairFailures.WithLabelValues(string(pair.Reason)).Inc()
	}
	p.metrics.ruleWrites.WithLabelValues(installOp).Add(float64(report.Installed))
	p.metrics.ruleWrites.WithLabelValues(removeOp).Add(float64(report.Removed))
	p.metrics.lastPassDuration.Set(report.End.Sub(report.Start).Seconds())
}
