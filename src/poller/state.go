package poller

import (
	"math/big"
	"time"

	"github.com/stake-plus/postoracle/src/config"
	"github.com/stake-plus/postoracle/src/ledger"
)

// State is a poll session's lifecycle position.
type State int

const (
	Idle State = iota
	Polling
	Terminal
	Exhausted
	Cancelled
)

var stateNames = [...]string{"Idle", "Polling", "Terminal", "Exhausted", "Cancelled"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "Unknown"
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Ended reports whether no further queries will be issued.
func (s State) Ended() bool { return s == Terminal || s == Exhausted || s == Cancelled }

type Config struct {
	Interval    time.Duration
	MaxAttempts int
}

// DefaultConfig polls every 5s for at most a minute.
func DefaultConfig() Config {
	return Config{Interval: config.DefaultPollInterval, MaxAttempts: config.DefaultPollMaxAttempts}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	return c
}

// Update is one applied tick.
type Update struct {
	PostID        *big.Int
	CorrelationID string
	Tick          int
	State         State
	Post          *ledger.Post
	Err           error
}

// Outcome is delivered once, when a session leaves Polling.
type Outcome struct {
	PostID        *big.Int
	CorrelationID string
	State         State
	Attempts      int
	Last          *ledger.Post
	LastErr       error
}

// Snapshot is a point-in-time copy of a session.
type Snapshot struct {
	PostID        *big.Int
	CorrelationID string
	State         State
	Attempts      int
	MaxAttempts   int
	Interval      time.Duration
	Last          *ledger.Post
	LastErr       error
	StartedAt     time.Time
	EndedAt       time.Time
}
