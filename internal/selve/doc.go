// Package selve implements the wire vocabulary of the Selve Home Server
// gateway: decoding the JSON device records the gateway emits over its HTTP
// and multicast interfaces into typed Go values, and encoding generic command
// envelopes for the reverse direction.
//
// The gateway reports a heterogeneous set of records discriminated by a
// "type" tag (Commeo devices, Iveo devices, device groups, transient events)
// and, for Commeo, a secondary "deviceType" tag (receiver vs sensor).
// DecodeDevice is the single entry point; it returns one of the concrete
// Device implementations or an error describing why the record could not be
// understood. Callers are expected to log and skip undecodable records so a
// single malformed entry never poisons a whole gateway response.
//
// Flags decoding, device-type labelling and display-name repair are exposed
// separately because the multicast path delivers partial updates that reuse
// the same primitives without carrying full device records.
package selve
