// Package gateway pushes group change notifications to WebSocket clients.
//
// Each connected client holds a set of group subscriptions and runs three
// goroutines: a read pump for subscribe and unsubscribe control messages, a
// watch pump that waits on the broker for any of its groups, and a write pump
// that drains the client's send queue. Delivery follows the broker's
// at-most-once semantics, so a notification raised while a client is between
// waits is not replayed.
package gateway
