package interview

import (
	"strings"
	"time"
)

// Speaker identifies which side of the interview produced an utterance.
type Speaker int

const (
	SpeakerInterviewer Speaker = iota
	SpeakerCandidate
)

func (s Speaker) String() string {
	switch s {
	case SpeakerInterviewer:
		return "interviewer"
	case SpeakerCandidate:
		return "candidate"
	default:
		return "unknown"
	}
}

// TranscriptEntry is one finalized utterance. Entries are immutable once
// appended.
type TranscriptEntry struct {
	Speaker   Speaker
	Text      string
	Timestamp time.Time
}

// Transcript accumulates finalized utterances in arrival order. It is not
// safe for concurrent use; the session serializes access through its event
// loop.
type Transcript struct {
	entries []TranscriptEntry
}

// Append adds a finalized utterance unless it exactly repeats the
// immediately preceding entry from the same speaker. Empty text is
// dropped. It reports whether an entry was added.
func (t *Transcript) Append(speaker Speaker, text string, at time.Time) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	if n := len(t.entries); n > 0 {
		last := t.entries[n-1]
		if last.Speaker == speaker && last.Text == text {
			return false
		}
	}
	t.entries = append(t.entries, TranscriptEntry{Speaker: speaker, Text: text, Timestamp: at})
	return true
}

// Entries returns a copy of the accumulated transcript.
func (t *Transcript) Entries() []TranscriptEntry {
	out := make([]TranscriptEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len returns the number of finalized utterances.
func (t *Transcript) Len() int {
	return len(t.entries)
}

// IsQuestion classifies a finalized interviewer utterance. The question
// limit is calibrated against this heuristic, so keep it as-is.
func IsQuestion(text string) bool {
	return strings.Contains(text, "?")
}
