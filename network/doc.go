// Package network publishes conversion progress over ZeroMQ.
// This package implements:
// - Event: one progress notification, JSON encoded
// - ZmqPublisher: PUB socket that fans events out to subscribers
package network
