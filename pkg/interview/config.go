package interview

import "time"

// Job is the position the candidate is interviewing for. It shapes the
// interviewer's instructions and labels the saved assessment.
type Job struct {
	Title       string
	Company     string
	Description string
}

// Config holds session limits and pacing knobs.
type Config struct {
	// QuestionLimit ends the session after this many interviewer
	// questions.
	QuestionLimit int

	// TimeLimit ends the session after this much wall-clock time. Zero
	// defers to the limit issued with the connection token.
	TimeLimit time.Duration

	// QuestionGraceDelay lets the final answer land before the
	// question-limit teardown runs.
	QuestionGraceDelay time.Duration

	// ResponseDelay is the pause between session configuration and the
	// first response request, giving the provider time to apply the
	// configuration.
	ResponseDelay time.Duration
}

// DefaultConfig returns the standard session limits.
func DefaultConfig() Config {
	return Config{
		QuestionLimit:      5,
		TimeLimit:          30 * time.Second,
		QuestionGraceDelay: 2 * time.Second,
		ResponseDelay:      500 * time.Millisecond,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.QuestionLimit <= 0 {
		c.QuestionLimit = def.QuestionLimit
	}
	if c.QuestionGraceDelay <= 0 {
		c.QuestionGraceDelay = def.QuestionGraceDelay
	}
	if c.ResponseDelay <= 0 {
		c.ResponseDelay = def.ResponseDelay
	}
	return c
}

// Status is the connection phase of a session.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusClosing
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// SpeakingState is a point-in-time view of who is talking. It gates
// interruption and is recomputed on every relevant event.
type SpeakingState struct {
	Bot  bool
	User bool
}

// Snapshot is a read-only view of live session state for presentation.
type Snapshot struct {
	Status        Status
	Recording     bool
	QuestionCount int
	QuestionLimit int
	TimeLimit     time.Duration
	Speaking      SpeakingState
	StartedAt     time.Time
	Entries       []TranscriptEntry
	Warnings      []string
}
