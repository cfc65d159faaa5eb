package domain

import "context"

// ChannelStatus reports the runtime state of a channel.
type ChannelStatus struct {
	Channel   string `json:"channel"`
	Connected bool   `json:"connected"`
	Running   bool   `json:"running"`
	LastError string `json:"lastError,omitempty"`
}

// Channel is the interface every transport implementation must satisfy.
// Callers treat channel failures as non-fatal to the rest of the system.
type Channel interface {
	// Name returns the stable transport identifier (e.g. "irc", "discord").
	Name() string

	// Start establishes whatever is needed to begin receiving and sending.
	// Configuration problems surface synchronously; connection failures are
	// retried internally and never returned here.
	Start(ctx context.Context) error

	// Stop releases all resources. It is idempotent and must unblock any
	// goroutine parked in a blocking read.
	Stop(ctx context.Context) error

	// Send delivers an outbound message, chunking internally as needed.
	// It returns nil only after every chunk was accepted by the transport.
	Send(ctx context.Context, msg OutboundMessage) error

	// Healthy is a best-effort, non-blocking liveness probe.
	Healthy() bool
}

// StatusReporter is implemented by channels that expose detailed status.
type StatusReporter interface {
	Status() ChannelStatus
}
