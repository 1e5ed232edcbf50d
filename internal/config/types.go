package config

import "strings"

// Config is the root configuration.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
// Both YAML and JSON files are accepted; YAML is coerced to JSON and both
// go through the same strict decoder (unknown keys are rejected).
type Config struct {
	Server   ServerConfig   `json:"server"`
	Data     DataConfig     `json:"data"`
	Session  SessionConfig  `json:"session"`
	Dispatch DispatchConfig `json:"dispatch"`
	Schedule ScheduleConfig `json:"schedule,omitempty"`
	Logging  LoggingConfig  `json:"logging"`
}

// ServerConfig controls the HTTP API server.
type ServerConfig struct {
	Addr string `json:"addr,omitempty"` // default: ":3000"

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

// DataConfig controls where campaign state lives on disk.
//
// Layout under Dir (defaults, all overridable):
//   - contacts.csv        contact table ("file" driver)
//   - contacts.db         contact table ("sqlite" driver)
//   - message/message.json  campaign settings singleton
//   - assets/             current media attachment
type DataConfig struct {
	Dir      string         `json:"dir,omitempty"` // default: "./data"
	Contacts ContactsConfig `json:"contacts,omitempty"`
}

// ContactsConfig selects the contact store backend.
//
// Driver values:
//   - "file" (default): CSV table, columns phone,name,sent
//   - "sqlite": SQLite database file
type ContactsConfig struct {
	Driver      string `json:"driver,omitempty"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// SessionConfig controls the WhatsApp session layer.
type SessionConfig struct {
	// StorePath is the whatsmeow credential database (sqlite).
	StorePath string `json:"store_path,omitempty"` // default: "<data.dir>/session.db"

	// CountryCode is prepended to phone numbers of 10 digits or fewer.
	CountryCode string `json:"country_code,omitempty"` // default: "91"

	// ChatSuffix is the JID server suffix for direct chats.
	ChatSuffix string `json:"chat_suffix,omitempty"` // default: "s.whatsapp.net"

	// ConnectTimeout bounds how long /bot/qr waits for a terminal
	// transport event (challenge, ready or failure).
	ConnectTimeout string `json:"connect_timeout,omitempty"` // default: "60s"
}

// DispatchConfig controls the campaign sweep.
type DispatchConfig struct {
	// SendDelay is the fixed pause after every send attempt.
	// The transport is rate-sensitive; do not set this below ~1s in production.
	SendDelay string `json:"send_delay,omitempty"` // default: "2s"
}

// ScheduleConfig optionally triggers sweeps automatically.
//
// Spec accepts a cron expression ("*/30 * * * *", "@hourly") or a plain
// duration ("45m"). Scheduled sweeps are skipped while the session is not
// ready or another sweep is running.
type ScheduleConfig struct {
	Enabled  bool   `json:"enabled"`
	Spec     string `json:"spec,omitempty"`
	UseImage bool   `json:"use_image,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// ApplyDefaults fills zero values in place.
func (c *Config) ApplyDefaults() {
	if strings.TrimSpace(c.Server.Addr) == "" {
		c.Server.Addr = ":3000"
	}
	if strings.TrimSpace(c.Data.Dir) == "" {
		c.Data.Dir = "./data"
	}
	if strings.TrimSpace(c.Data.Contacts.Driver) == "" {
		c.Data.Contacts.Driver = "file"
	}
	if strings.TrimSpace(c.Session.CountryCode) == "" {
		c.Session.CountryCode = "91"
	}
	if strings.TrimSpace(c.Session.ChatSuffix) == "" {
		c.Session.ChatSuffix = "s.whatsapp.net"
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
}
