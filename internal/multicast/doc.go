// Package multicast receives the gateway's unsolicited state updates from
// the well-known multicast group 239.255.255.250:1901.
//
// Datagrams are ASCII-prefixed JSON: "STA:" for state updates, "EVT:" for
// events, both carrying {sid, state, changed}. The listener parses each
// datagram into a typed state.Delta and hands it to a callback; anything
// unparseable is logged and discarded, and socket errors pause briefly and
// retry, so the receive loop only ever exits through Close.
package multicast
