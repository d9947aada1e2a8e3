package interview

import (
	"testing"
	"time"
)

func TestTranscriptAppendDeduplicates(t *testing.T) {
	var tr Transcript
	now := time.Now()

	if !tr.Append(SpeakerInterviewer, "Tell me about yourself?", now) {
		t.Fatal("first append rejected")
	}
	if tr.Append(SpeakerInterviewer, "Tell me about yourself?", now.Add(time.Second)) {
		t.Error("duplicate consecutive entry from same speaker was appended")
	}
	if !tr.Append(SpeakerCandidate, "Tell me about yourself?", now.Add(2*time.Second)) {
		t.Error("same text from other speaker should append")
	}
	if !tr.Append(SpeakerInterviewer, "Tell me about yourself?", now.Add(3*time.Second)) {
		t.Error("non-consecutive repeat should append")
	}
	if tr.Len() != 3 {
		t.Errorf("Len = %d, want 3", tr.Len())
	}
}

func TestTranscriptAppendDropsEmpty(t *testing.T) {
	var tr Transcript
	if tr.Append(SpeakerCandidate, "   ", time.Now()) {
		t.Error("whitespace-only text was appended")
	}
	if tr.Len() != 0 {
		t.Errorf("Len = %d, want 0", tr.Len())
	}
}

func TestTranscriptEntriesIsACopy(t *testing.T) {
	var tr Transcript
	tr.Append(SpeakerCandidate, "hello", time.Now())
	entries := tr.Entries()
	entries[0].Text = "mutated"
	if tr.Entries()[0].Text != "hello" {
		t.Error("Entries exposed internal storage")
	}
}

func TestIsQuestion(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"What is your greatest strength?", true},
		{"Thanks, that wraps up the interview.", false},
		{"Interesting. Why did you choose Go?", true},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsQuestion(tt.text); got != tt.want {
			t.Errorf("IsQuestion(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestSpeakerString(t *testing.T) {
	if SpeakerInterviewer.String() != "interviewer" || SpeakerCandidate.String() != "candidate" {
		t.Error("unexpected speaker labels")
	}
}
