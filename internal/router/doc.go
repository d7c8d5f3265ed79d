// Package router implements the Event Router: a typed publish/subscribe
// bus that demultiplexes inbound named events to registered handlers.
//
// Dispatch is strictly sequential. A single goroutine drains the
// connection manager's frame stream and the local publish queue, so no
// two handlers ever run concurrently and handlers may mutate their
// component state without locking against each other. Handlers must not
// block on I/O.
package router
