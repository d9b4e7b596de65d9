// Package client implements the typed daemon client.
//
// A Client owns one request/response connection to the daemon socket and a
// subscription manager. Every domain call is a single JSON-RPC round trip on
// the shared connection; each event subscription dials its own connection so
// a long-lived stream never blocks requests.
//
// Domain-level failures reported inside a successful reply (an approval the
// daemon refused, an interrupt that did not take) are translated into typed
// errors so callers do not have to inspect success flags.
package client
