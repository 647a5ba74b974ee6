package config

type Config struct {
	Logging LoggingConfig `json:"logging"`

	// Storage supplies regimen/sequence definitions, the device timezone
	// setting and the durable execution markers. It is required: the
	// scheduler cannot run without it.
	Storage StorageConfig `json:"storage"`

	// Dispatch controls the sequence execution pipeline.
	Dispatch DispatchConfig `json:"dispatch,omitempty"`

	// Notify relays regimen telemetry to an operator chat. Optional.
	Notify *NotifyConfig `json:"notify,omitempty"`

	// Janitor prunes old execution markers. Optional.
	Janitor *JanitorConfig `json:"janitor,omitempty"`
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

// StorageConfig controls the persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./tendbot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// DispatchConfig controls the sequence dispatcher.
//
// Defaults (when fields are omitted/zero):
//   - workers: 2
//   - queue_size: 64
type DispatchConfig struct {
	Workers   int `json:"workers,omitempty"`
	QueueSize int `json:"queue_size,omitempty"`
}

// NotifyConfig controls the operator Telegram channel.
//
// RatePerSec bounds outbound messages; bursts beyond it are dropped, never queued
// without bound.
type NotifyConfig struct {
	Enabled    bool   `json:"enabled"`
	Token      string `json:"token,omitempty"`
	ChatID     int64  `json:"chat_id,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
	QueueSize  int    `json:"queue_size,omitempty"`
}

// JanitorConfig controls retention pruning of execution markers.
//
// Retention is a Go duration string (default "720h", i.e. 30 days).
type JanitorConfig struct {
	Enabled   bool   `json:"enabled"`
	Retention string `json:"retention,omitempty"`
}
