package domain

import (
	"time"
)

// LogRecord is an opaque record pulled from the log source. Records are passed
// through to sinks unchanged; the shipper only looks at the date, type and id
// fields, all of which are optional.
type LogRecord map[string]interface{}

func (r LogRecord) ID() string {
	if v, ok := r["log_id"].(string); ok {
		return v
	}
	if v, ok := r["_id"].(string); ok {
		return v
	}
	return ""
}

func (r LogRecord) Type() string {
	v, _ := r["type"].(string)
	return v
}

// Date parses the record timestamp. Accepts RFC3339 strings, time.Time values
// and epoch milliseconds.
func (r LogRecord) Date() (time.Time, bool) {
	switch v := r["date"].(type) {
	case time.Time:
		return v, true
	case string:
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t, true
		}
	case float64:
		return time.UnixMilli(int64(v)), true
	case int64:
		return time.UnixMilli(v), true
	}
	return time.Time{}, false
}

// RunStatus records the outcome of one shipping run. A bounded tail of these is
// kept inside the checkpoint document.
type RunStatus struct {
	ID            string     `json:"id"`
	StartedAt     time.Time  `json:"started_at"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
	LogsProcessed int        `json:"logsProcessed"`
	Error         string     `json:"error,omitempty"`
	Warning       string     `json:"warning,omitempty"`
	Checkpoint    string     `json:"checkpoint,omitempty"`
	ConfigHash    string     `json:"config_hash,omitempty"`
}

// StorageDocument is the persisted unit behind the checkpoint store: the
// checkpoint to resume from plus the run history tail.
type StorageDocument struct {
	CheckpointID string      `json:"checkpointId"`
	Logs         []RunStatus `json:"logs"`
}

// RunResult is returned by a successful run.
type RunResult struct {
	Status     RunStatus `json:"status"`
	Checkpoint string    `json:"checkpoint"`
}

// Profile describes a configured log source or sink, loaded from the profiles
// directory.
type Profile struct {
	ID      string            `json:"id" yaml:"id"`
	Name    string            `json:"name" yaml:"name"`
	Kind    string            `json:"kind" yaml:"kind"`
	URL     string            `json:"url,omitempty" yaml:"url,omitempty"`
	Token   string            `json:"token,omitempty" yaml:"token,omitempty"`
	DSN     string            `json:"dsn,omitempty" yaml:"dsn,omitempty"`
	Table   string            `json:"table,omitempty" yaml:"table,omitempty"`
	Index   string            `json:"index,omitempty" yaml:"index,omitempty"`
	Options map[string]string `json:"options,omitempty" yaml:"options,omitempty"`
}

const (
	SourceKindHTTP = "http"
	SourceKindFake = "fake"

	SinkKindWriter        = "writer"
	SinkKindElasticsearch = "elasticsearch"
	SinkKindPostgres      = "postgres"
)

// ShipRequest is the service-level request to execute one run.
type ShipRequest struct {
	SourceID          string   `json:"source_id"`
	SinkID            string   `json:"sink_id"`
	BatchSize         int      `json:"batch_size,omitempty"`
	MaxRetries        int      `json:"max_retries,omitempty"`
	MaxRunTimeSeconds int      `json:"max_run_time_seconds,omitempty"`
	StartFrom         string   `json:"start_from,omitempty"`
	LogTypes          []string `json:"log_types,omitempty"`
	LogLevel          int      `json:"log_level,omitempty"`
}
