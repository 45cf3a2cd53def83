package cachestore

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type metrics struct {
	reads     metric.Int64Counter
	mutations metric.Int64Counter
	discarded metric.Int64Counter
}

func newMetrics() *metrics {
	meter := otel.Meter("finance-tracker-web/cachestore")
	reads, _ := meter.Int64Counter("cache.reads",
		metric.WithDescription("Cache reads by result (hit, miss, optimistic)"),
	)
	mutations, _ := meter.Int64Counter("cache.mutations",
		metric.WithDescription("Settled optimistic mutations by kind and outcome"),
	)
	discarded, _ := meter.Int64Counter("cache.discarded_reads",
		metric.WithDescription("Read results dropped because a newer generation superseded them"),
	)
	return &metrics{reads: reads, mutations: mutations, discarded: discarded}
}

func (m *metrics) read(ctx context.Context, key Key, result string) {
	m.reads.Add(ctx, 1, metric.WithAttributes(
		attribute.String("cache.kind", string(key.Kind)),
		attribute.String("result", result),
	))
}

func (m *metrics) mutation(ctx context.Context, kind MutationKind, state MutationState) {
	m.mutations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", string(kind)),
		attribute.String("outcome", state.String()),
	))
}

func (m *metrics) discardedRead(ctx context.Context, key Key) {
	m.discarded.Add(ctx, 1, metric.WithAttributes(attribute.String("cache.kind", string(key.Kind))))
}
