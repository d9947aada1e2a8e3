// Package analysis scores a finished interview transcript and persists the
// resulting assessment. Scoring is delegated to an external model; this
// package owns validation, bounded retry, and storage.
package analysis

import (
	"context"
	"fmt"
	"strings"

	"github.com/mubashirsidiki/ai-coach/pkg/interview"
)

// Request is everything the scoring model sees.
type Request struct {
	Entries       []interview.TranscriptEntry
	QuestionCount int
	Job           interview.Job
}

// QuestionReview is the per-question breakdown in an analysis.
type QuestionReview struct {
	Question string   `json:"question"`
	Answer   string   `json:"answer"`
	Score    *float64 `json:"score"`
	Feedback string   `json:"feedback"`
}

// Analysis is the structured scoring result. Score fields are pointers so
// a missing field is distinguishable from an explicit zero.
type Analysis struct {
	OverallScore         *float64         `json:"overallScore"`
	CommunicationScore   *float64         `json:"communicationScore"`
	TechnicalScore       *float64         `json:"technicalScore"`
	ResponseQualityScore *float64         `json:"responseQualityScore"`
	Strengths            []string         `json:"strengths"`
	Weaknesses           []string         `json:"weaknesses"`
	Feedback             string           `json:"feedback"`
	Questions            []QuestionReview `json:"questions"`
	ImprovementTip       string           `json:"improvementTip"`
}

// Validate checks the required numeric scores. A response missing any of
// them is retried rather than accepted.
func (a *Analysis) Validate() error {
	var missing []string
	if a.OverallScore == nil {
		missing = append(missing, "overallScore")
	}
	if a.CommunicationScore == nil {
		missing = append(missing, "communicationScore")
	}
	if a.TechnicalScore == nil {
		missing = append(missing, "technicalScore")
	}
	if a.ResponseQualityScore == nil {
		missing = append(missing, "responseQualityScore")
	}
	if len(missing) > 0 {
		return fmt.Errorf("analysis missing required scores: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Analyzer scores one interview.
type Analyzer interface {
	Analyze(ctx context.Context, req Request) (*Analysis, error)
}

// FormatTranscript renders a transcript as the labeled dialogue the scoring
// prompt embeds.
func FormatTranscript(entries []interview.TranscriptEntry) string {
	var b strings.Builder
	for _, e := range entries {
		label := "Interviewer"
		if e.Speaker == interview.SpeakerCandidate {
			label = "Candidate"
		}
		fmt.Fprintf(&b, "%s: %s\n", label, e.Text)
	}
	return b.String()
}
