// Package telemetry runs the background promotion pipeline over the four
// durable telemetry layers in pkg/storage (raw_24h, live, history_5min,
// daily) and offers a single Reader for callers that don't care which
// layer backs a given time range.
//
// Each layer has its own Job: a ticker-driven loop (ticker + select on
// stopCh) in its own goroutine, so a slow daily rollup never blocks the
// minute-granularity live promotion. cmd/fleetd starts and stops all four
// together through a Promoter.
package telemetry
