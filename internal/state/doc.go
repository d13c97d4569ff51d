// Package state holds the authoritative in-memory view of every device the
// gateway reports, reconciling the two ingest channels: full snapshots from
// the HTTP poll and partial deltas from the UDP multicast feed.
//
// Multicast updates arrive seconds before the poll reflects them, so the
// store keeps a recency ledger of the last delta applied per device. When a
// snapshot lands, any field that disagrees with a delta younger than the
// freshness window is silently resolved in the delta's favour; older
// disagreements resolve toward the poll and are logged as mismatches, since
// they indicate the gateway's channels have genuinely diverged.
//
// All merges are serialised through a single mutex. Readers always receive
// deep copies, so no caller can mutate the store's view from outside.
package state
