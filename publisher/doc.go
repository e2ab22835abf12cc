// Package publisher delivers drained change batches to the configured
// endpoints.
//
// # Architecture
//
//  1. SettingsStore: the current webhook settings, swapped atomically on load
//     or reload. Each store bumps a generation that invalidates cached sinks.
//  2. Dispatcher: encodes a batch once and publishes it to every endpoint in
//     its own goroutine. Delivery is fire-and-forget: failures are logged with
//     the endpoint and never retried.
//  3. Sinks: one per endpoint, chosen by URL scheme through RegisterSink
//     factories (see package sink for http/https, nats and kafka).
//  4. Journal: optional Pebble-backed history of delivery attempts for
//     operators. It never holds pending changes.
//  5. PadFilter: glob include/exclude patterns on pad ids.
//
// Key prefixes of the journal:
//
//	/delivery/{seq:016x} -> msgpack(DeliveryRecord)
//
// # Thread Safety
//
// SettingsStore, Dispatcher and Journal are safe for concurrent use.
package publisher
