package domain

import "time"

// SessionConfig holds the options captured when a session starts.
type SessionConfig struct {
	DelayMs        int  `json:"delayMs" yaml:"delay_ms" validate:"gte=0,lte=60000"`
	MaxRetries     int  `json:"maxRetries" yaml:"max_retries" validate:"gte=0,lte=20"`
	TimeoutMs      int  `json:"timeoutMs" yaml:"timeout_ms" validate:"gte=0,lte=600000"`
	ExtractDetails bool `json:"extractDetails" yaml:"extract_details"`
}

func (c SessionConfig) Delay() time.Duration   { return time.Duration(c.DelayMs) * time.Millisecond }
func (c SessionConfig) Timeout() time.Duration { return time.Duration(c.TimeoutMs) * time.Millisecond }

// Stats are the running counters reported by the executor.
type Stats struct {
	UnitsProcessed int `json:"unitsProcessed"`
	ItemsCollected int `json:"itemsCollected"`
	ErrorCount     int `json:"errorCount"`
}

type LogLevel string

const (
	LevelInfo    LogLevel = "info"
	LevelSuccess LogLevel = "success"
	LevelWarning LogLevel = "warning"
	LevelError   LogLevel = "error"
)

// ParseLogLevel maps an executor level onto the known set, defaulting to info.
func ParseLogLevel(s string) LogLevel {
	switch LogLevel(s) {
	case LevelSuccess, LevelWarning, LevelError:
		return LogLevel(s)
	case "warn":
		return LevelWarning
	default:
		return LevelInfo
	}
}

type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     LogLevel  `json:"level"`
	Message   string    `json:"message"`
}

// NormalizeUnits drops blanks and duplicates, keeping first-seen order.
func NormalizeUnits(units []UnitID) []UnitID {
	seen := make(map[UnitID]bool, len(units))
	out := make([]UnitID, 0, len(units))
	for _, u := range units {
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}
