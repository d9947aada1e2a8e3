package interview

// Event is the interface for all session events surfaced to observers.
type Event interface {
	// EventType returns the event type string for serialization.
	EventType() string
}

// EntryAddedEvent is emitted when a finalized utterance joins the
// transcript.
type EntryAddedEvent struct {
	Entry TranscriptEntry `json:"entry"`
}

func (e *EntryAddedEvent) EventType() string { return "transcript.entry_added" }

// StatusChangedEvent is emitted on connection phase transitions.
type StatusChangedEvent struct {
	From Status `json:"from"`
	To   Status `json:"to"`
}

func (e *StatusChangedEvent) EventType() string { return "session.status_changed" }

// SpeakingChangedEvent is emitted whenever either side starts or stops
// talking.
type SpeakingChangedEvent struct {
	Speaking SpeakingState `json:"speaking"`
}

func (e *SpeakingChangedEvent) EventType() string { return "session.speaking_changed" }

// WarningEvent carries a non-fatal, human-readable problem.
type WarningEvent struct {
	Message string `json:"message"`
}

func (e *WarningEvent) EventType() string { return "session.warning" }

// TerminatedEvent is emitted exactly once when a limit or explicit end
// tears the session down.
type TerminatedEvent struct {
	Reason        string `json:"reason"`
	QuestionCount int    `json:"question_count"`
}

func (e *TerminatedEvent) EventType() string { return "session.terminated" }

// Termination reasons.
const (
	ReasonQuestionLimit = "question_limit"
	ReasonTimeLimit     = "time_limit"
	ReasonUser          = "user"
)
