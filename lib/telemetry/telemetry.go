// Copyright 2026 The Termgate Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry publishes the gateway's operational metrics
// through an OpenTelemetry meter backed by a manual reader. There is
// no exporter push loop: the supervisor serves a point-in-time
// snapshot over its control socket and leaves shipping to whoever
// asked.
//
// All record methods are safe on a nil receiver, so callers do not
// need to guard for telemetry being disabled.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
)

// Telemetry owns the meter provider and the gateway's instruments.
type Telemetry struct {
	provider *sdkmetric.MeterProvider
	reader   *sdkmetric.ManualReader

	bridgeCalls      metric.Int64Counter
	bridgeErrors     metric.Int64Counter
	callDuration     metric.Int64Histogram
	reapedProcesses  metric.Int64Counter
	configApplies    metric.Int64Counter
	terminalRestarts metric.Int64Counter

	shutdownOnce sync.Once
}

// Setup builds the meter provider and creates every instrument. The
// provider is also installed globally so future instrumentation can
// reach it through the otel package.
func Setup(serviceName string) (*Telemetry, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(attribute.String("service.name", serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("building resource: %w", err)
	}

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(provider)
	meter := provider.Meter("github.com/termgate/termgate")

	t := &Telemetry{provider: provider, reader: reader}

	var createErrors []error
	record := func(counter metric.Int64Counter, err error) metric.Int64Counter {
		createErrors = append(createErrors, err)
		return counter
	}
	t.bridgeCalls = record(meter.Int64Counter(
		"termgate.bridge.calls_total",
		metric.WithDescription("RPC calls relayed to the terminal")))
	t.bridgeErrors = record(meter.Int64Counter(
		"termgate.bridge.errors_total",
		metric.WithDescription("RPC calls that failed at the transport or terminal side")))
	t.reapedProcesses = record(meter.Int64Counter(
		"termgate.reaper.culled_total",
		metric.WithDescription("Surplus Wine helper processes killed")))
	t.configApplies = record(meter.Int64Counter(
		"termgate.config.applies_total",
		metric.WithDescription("Terminal configuration rewrites")))
	t.terminalRestarts = record(meter.Int64Counter(
		"termgate.terminal.restarts_total",
		metric.WithDescription("Operator-requested terminal restarts")))

	var histErr error
	t.callDuration, histErr = meter.Int64Histogram(
		"termgate.bridge.call.duration",
		metric.WithDescription("Duration of relayed RPC calls in milliseconds"),
		metric.WithUnit("ms"))
	createErrors = append(createErrors, histErr)

	if err := errors.Join(createErrors...); err != nil {
		return nil, fmt.Errorf("creating instruments: %w", err)
	}
	return t, nil
}

// RecordBridgeCall counts one relayed call with its duration. outcome
// is "ok" for a relayed response (whatever its status) and an error
// reason otherwise; any outcome other than "ok" also counts as an
// error.
func (t *Telemetry) RecordBridgeCall(ctx context.Context, method string, duration time.Duration, outcome string) {
	if t == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("outcome", outcome),
	)
	t.bridgeCalls.Add(ctx, 1, attrs)
	if outcome != "ok" {
		t.bridgeErrors.Add(ctx, 1, attrs)
	}
	t.callDuration.Record(ctx, duration.Milliseconds(), attrs)
}

// RecordReaped counts processes killed by a reaper sweep.
func (t *Telemetry) RecordReaped(ctx context.Context, count int) {
	if t == nil {
		return
	}
	t.reapedProcesses.Add(ctx, int64(count))
}

// RecordConfigApply counts one terminal configuration rewrite.
func (t *Telemetry) RecordConfigApply(ctx context.Context) {
	if t == nil {
		return
	}
	t.configApplies.Add(ctx, 1)
}

// RecordTerminalRestart counts one operator-requested restart.
func (t *Telemetry) RecordTerminalRestart(ctx context.Context) {
	if t == nil {
		return
	}
	t.terminalRestarts.Add(ctx, 1)
}

// Snapshot collects current metric values and flattens them into a
// map keyed by instrument name plus attribute set. Counters map to
// their total; histograms map to <name>.count and <name>.sum entries.
func (t *Telemetry) Snapshot(ctx context.Context) (map[string]int64, error) {
	if t == nil {
		return nil, nil
	}

	var data metricdata.ResourceMetrics
	if err := t.reader.Collect(ctx, &data); err != nil {
		return nil, fmt.Errorf("collecting metrics: %w", err)
	}

	flat := make(map[string]int64)
	for _, scope := range data.ScopeMetrics {
		for _, m := range scope.Metrics {
			switch agg := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, point := range agg.DataPoints {
					flat[m.Name+attributeSuffix(point.Attributes)] = point.Value
				}
			case metricdata.Histogram[int64]:
				for _, point := range agg.DataPoints {
					key := m.Name + attributeSuffix(point.Attributes)
					flat[key+".count"] = int64(point.Count)
					flat[key+".sum"] = point.Sum
				}
			}
		}
	}
	return flat, nil
}

// Shutdown flushes and stops the meter provider. Safe to call more
// than once.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	var err error
	t.shutdownOnce.Do(func() {
		err = t.provider.Shutdown(ctx)
	})
	return err
}

// attributeSuffix renders an attribute set as "{k=v,k=v}", empty for
// no attributes. Sets iterate in key order, so the rendering is
// stable.
func attributeSuffix(set attribute.Set) string {
	if set.Len() == 0 {
		return ""
	}
	parts := make([]string, 0, set.Len())
	for iter := set.Iter(); iter.Next(); {
		kv := iter.Attribute()
		parts = append(parts, string(kv.Key)+"="+kv.Value.Emit())
	}
	return "{" + strings.Join(parts, ",") + "}"
}
