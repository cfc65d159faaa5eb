package config

// Config is the root configuration for Parley.
type Config struct {
	Channels  ChannelsConfig  `yaml:"channels,omitempty"`
	Bus       BusConfig       `yaml:"bus,omitempty"`
	Session   SessionConfig   `yaml:"session,omitempty"`
	Responder ResponderConfig `yaml:"responder,omitempty"`
	Logging   LoggingConfig   `yaml:"logging,omitempty"`
	Store     StoreConfig     `yaml:"store,omitempty"`
}

// ChannelsConfig holds per-transport configuration. A nil entry disables
// that transport.
type ChannelsConfig struct {
	Discord *DiscordConfig `yaml:"discord,omitempty"`
	IRC     *IRCConfig     `yaml:"irc,omitempty"`
}

// DiscordConfig defines the Discord gateway transport settings.
type DiscordConfig struct {
	Token        string   `yaml:"token"`
	Intents      uint     `yaml:"intents,omitempty"`      // gateway capability bitmask
	AllowFrom    []string `yaml:"allowFrom,omitempty"`    // sender IDs, "*" for anyone; empty denies all
	MentionOnly  *bool    `yaml:"mentionOnly,omitempty"`  // gate guild messages on a bot mention; defaults to true
	ListenToBots bool     `yaml:"listenToBots,omitempty"` // accept messages from other bots
}

// MentionGated returns whether guild messages require a mention.
func (c DiscordConfig) MentionGated() bool {
	if c.MentionOnly == nil {
		return true
	}
	return *c.MentionOnly
}

// IRCConfig defines the IRC transport settings.
type IRCConfig struct {
	Server      string   `yaml:"server"`
	Port        int      `yaml:"port,omitempty"` // 0 picks 6697 (TLS) or 6667
	Nick        string   `yaml:"nick"`
	RealName    string   `yaml:"realName,omitempty"`
	Password    string   `yaml:"password,omitempty"` // server password, or SASL password when sasl is set
	SASL        bool     `yaml:"sasl,omitempty"`
	UseTLS      bool     `yaml:"useTLS,omitempty"`
	Channels    []string `yaml:"channels"`
	AllowFrom   []string `yaml:"allowFrom,omitempty"`
	MentionOnly *bool    `yaml:"mentionOnly,omitempty"`
}

// MentionGated returns whether channel messages require the bot's nick.
func (c IRCConfig) MentionGated() bool {
	if c.MentionOnly == nil {
		return true
	}
	return *c.MentionOnly
}

// BusConfig controls the inbound/outbound queues.
type BusConfig struct {
	QueueSize int `yaml:"queueSize,omitempty"`
}

// SessionConfig defines conversation session behavior.
type SessionConfig struct {
	Scope string `yaml:"scope,omitempty"` // "per-sender" | "global"
}

// ResponderConfig defines the external command that answers inbound
// messages when running without an in-process agent.
type ResponderConfig struct {
	Command string `yaml:"command,omitempty"`
	Timeout int    `yaml:"timeout,omitempty"` // seconds
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
}

// StoreConfig controls the resume-state store.
type StoreConfig struct {
	Backend string `yaml:"backend,omitempty"` // "sqlite" | "none"
}
