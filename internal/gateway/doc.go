// Package gateway is the HTTP client for the Selve Home Server's local API.
//
// The gateway answers on plain HTTP with a password passed as a query
// parameter. Successful responses wrap their payload in an envelope keyed
// "XC_SUC"; anything else is treated as a failure. A state fetch decodes
// each device record individually so one malformed record costs only
// itself, never the whole poll.
package gateway
