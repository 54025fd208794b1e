// Package experiment is the pairing and phase-synchronization engine.
//
// An Engine owns every participant record, the pairing pool and the pairs.
// It is driven by three entry points, OnConnect, OnDisconnect and OnMessage,
// and answers exclusively through a Sender. The Engine is not safe for
// concurrent use: callers serialize events, and the two-party rendezvous
// points rely on that serialization to decide which side arrived second.
package experiment
