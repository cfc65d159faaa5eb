package cli

import (
	"fmt"

	"github.com/parleybot/parley/internal/bus"
	"github.com/parleybot/parley/internal/channel/discord"
	"github.com/parleybot/parley/internal/channel/irc"
	"github.com/parleybot/parley/internal/config"
	"github.com/parleybot/parley/internal/domain"
	"github.com/parleybot/parley/internal/store"
)

// buildChannels constructs every configured channel.
func buildChannels(cfg config.Config, publisher bus.Publisher, resume *store.ResumeStore) []domain.Channel {
	var channels []domain.Channel
	if cfg.Channels.Discord != nil {
		channels = append(channels, discord.New(*cfg.Channels.Discord, publisher, resume, log))
	}
	if cfg.Channels.IRC != nil {
		channels = append(channels, irc.New(*cfg.Channels.IRC, publisher, log))
	}
	return channels
}

// buildChannel constructs a single configured channel by name.
func buildChannel(name string, cfg config.Config, publisher bus.Publisher, resume *store.ResumeStore) (domain.Channel, error) {
	for _, ch := range buildChannels(cfg, publisher, resume) {
		if ch.Name() == name {
			return ch, nil
		}
	}
	return nil, fmt.Errorf("channel %q is not configured", name)
}
