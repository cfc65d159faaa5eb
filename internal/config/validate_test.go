package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func issuePaths(issues []ValidationIssue) []string {
	paths := make([]string, 0, len(issues))
	for _, i := range issues {
		paths = append(paths, i.Path)
	}
	return paths
}

func TestValidate_DefaultsAreValid(t *testing.T) {
	cfg := Defaults()
	assert.Empty(t, Validate(&cfg))
}

func TestValidate_BadLogLevel(t *testing.T) {
	cfg := Defaults()
	cfg.Logging.Level = "verbose"
	assert.Contains(t, issuePaths(Validate(&cfg)), "logging.level")
}

func TestValidate_BadScope(t *testing.T) {
	cfg := Defaults()
	cfg.Session.Scope = "everyone"
	assert.Contains(t, issuePaths(Validate(&cfg)), "session.scope")
}

func TestValidate_NegativeQueueSize(t *testing.T) {
	cfg := Defaults()
	cfg.Bus.QueueSize = -1
	assert.Contains(t, issuePaths(Validate(&cfg)), "bus.queueSize")
}

func TestValidate_DiscordTokenRequired(t *testing.T) {
	cfg := Defaults()
	cfg.Channels.Discord = &DiscordConfig{}
	assert.Contains(t, issuePaths(Validate(&cfg)), "channels.discord.token")

	cfg.Channels.Discord.Token = "abc"
	assert.Empty(t, Validate(&cfg))
}

func TestValidate_IRC(t *testing.T) {
	tests := []struct {
		name     string
		irc      IRCConfig
		wantPath string
	}{
		{"missing server", IRCConfig{Nick: "bot"}, "channels.irc.server"},
		{"missing nick", IRCConfig{Server: "irc.example.org"}, "channels.irc.nick"},
		{"bad port", IRCConfig{Server: "s", Nick: "n", Port: 99999}, "channels.irc.port"},
		{"sasl without password", IRCConfig{Server: "s", Nick: "n", SASL: true}, "channels.irc.sasl"},
		{"bad channel name", IRCConfig{Server: "s", Nick: "n", Channels: []string{"general"}}, "channels.irc.channels[0]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			irc := tt.irc
			cfg.Channels.IRC = &irc
			assert.Contains(t, issuePaths(Validate(&cfg)), tt.wantPath)
		})
	}
}

func TestValidate_ValidIRC(t *testing.T) {
	cfg := Defaults()
	cfg.Channels.IRC = &IRCConfig{
		Server:   "irc.libera.chat",
		Nick:     "parley",
		Port:     6697,
		UseTLS:   true,
		SASL:     true,
		Password: "sesame",
		Channels: []string{"#parley", "&local"},
	}
	require.Empty(t, Validate(&cfg))
}
