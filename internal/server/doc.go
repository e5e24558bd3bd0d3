// Package server implements the chat endpoint: a raw TCP listener that reads
// one HTTP/1.1 request per connection, gates it against the system state,
// routes it to a handler, writes one response, and closes.
//
// The implementation is organized into files for the transport, access
// middleware, routing, error mapping, and the system, chat, and long-poll
// handlers.
package server
