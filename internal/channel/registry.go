// Package channel provides the shared transport machinery: the channel
// registry, the connection supervisor, the outbound chunker, and the
// inbound sender gate.
package channel

import (
	"context"
	"sync"

	"github.com/parleybot/parley/internal/domain"
	"github.com/parleybot/parley/internal/logging"
)

// Registry manages the set of active transports.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]domain.Channel
	log      *logging.Logger
}

// NewRegistry creates an empty channel registry.
func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{
		channels: make(map[string]domain.Channel),
		log:      log.Sub("channels"),
	}
}

// Register adds a channel to the registry.
func (r *Registry) Register(ch domain.Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels[ch.Name()] = ch
	r.log.Info().Str("channel", ch.Name()).Msg("channel registered")
}

// Get returns a channel by name.
func (r *Registry) Get(name string) (domain.Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[name]
	return ch, ok
}

// List returns all registered channel names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.channels))
	for name := range r.channels {
		names = append(names, name)
	}
	return names
}

// Count returns the number of registered channels.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}

// Status returns the status of all registered channels.
func (r *Registry) Status() []domain.ChannelStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	statuses := make([]domain.ChannelStatus, 0, len(r.channels))
	for _, ch := range r.channels {
		if sr, ok := ch.(domain.StatusReporter); ok {
			statuses = append(statuses, sr.Status())
			continue
		}
		statuses = append(statuses, domain.ChannelStatus{
			Channel:   ch.Name(),
			Connected: ch.Healthy(),
			Running:   true,
		})
	}
	return statuses
}

// StartAll starts every registered channel. A channel that fails to start
// (configuration error) is logged and skipped; the rest keep going.
func (r *Registry) StartAll(ctx context.Context) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for name, ch := range r.channels {
		r.log.Info().Str("channel", name).Msg("starting channel")
		if err := ch.Start(ctx); err != nil {
			r.log.Error().Err(err).Str("channel", name).Msg("channel failed to start")
		}
	}
}

// StopAll stops every registered channel.
func (r *Registry) StopAll(ctx context.Context) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for name, ch := range r.channels {
		r.log.Info().Str("channel", name).Msg("stopping channel")
		if err := ch.Stop(ctx); err != nil {
			r.log.Error().Err(err).Str("channel", name).Msg("failed to stop channel")
		}
	}
}
