package interview

import (
	"strings"
	"testing"
)

func TestInstructions(t *testing.T) {
	got := Instructions(Job{Title: "SRE", Company: "Acme", Description: "Keep things up."}, 5)
	for _, want := range []string{"SRE", "Acme", "Keep things up.", "exactly 5 interview questions"} {
		if !strings.Contains(got, want) {
			t.Errorf("instructions missing %q", want)
		}
	}
}

func TestInstructionsDefaultsAndTruncation(t *testing.T) {
	long := strings.Repeat("x", maxDescriptionLen+500)
	got := Instructions(Job{Description: long}, 3)
	if strings.Contains(got, long) {
		t.Error("description was not truncated")
	}
	if !strings.Contains(got, long[:maxDescriptionLen]) {
		t.Error("truncated description missing")
	}
	if !strings.Contains(got, "the open position") || !strings.Contains(got, "the company") {
		t.Error("placeholder title or company missing")
	}
}
