// Package gateway connects participant WebSockets to the experiment engine.
//
// A Hub owns the engine and runs a single event loop. Connection goroutines
// never touch engine state; they submit connect, message and disconnect
// events to the loop, and the loop answers by queueing frames on each
// connection's send buffer.
package gateway
