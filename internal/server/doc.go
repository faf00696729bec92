// Package server implements the presence and relay service: a registry of
// named participants, WebSocket connections bound to those participants, and
// fan-out of chat messages and membership snapshots to every open connection.
//
// All shared state is owned by a Hub whose single event loop runs every
// connection event and registry operation to completion before starting the
// next. The implementation is organized into specialized files for
// configuration, hub management, clients, routing, and HTTP handlers.
package server
