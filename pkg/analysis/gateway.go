package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/mubashirsidiki/ai-coach/pkg/interview"
)

const (
	maxAttempts      = 3
	defaultBaseDelay = time.Second
)

// Store persists completed assessments.
type Store interface {
	CreateAssessment(ctx context.Context, a Assessment) (int64, error)
}

// Assessment is the stored record of one scored interview.
type Assessment struct {
	UserID         string
	Score          float64
	Category       string
	ImprovementTip string

	// Payload is the serialized analysis, stored as JSON.
	Payload []byte
}

// Result is the terminal outcome of a finished session. Warnings carry
// secondary failures, storage errors in particular, that do not invalidate
// the analysis itself.
type Result struct {
	Analysis     *Analysis
	AssessmentID int64
	Warnings     []string
}

// Gateway scores a transcript with bounded retries and saves the result.
type Gateway struct {
	analyzer  Analyzer
	store     Store
	logger    *slog.Logger
	baseDelay time.Duration
}

// NewGateway composes the scoring and storage collaborators. Store may be
// nil; the analysis is then returned without persistence.
func NewGateway(analyzer Analyzer, store Store, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		analyzer:  analyzer,
		store:     store,
		logger:    logger,
		baseDelay: defaultBaseDelay,
	}
}

// Finish scores the interview and persists the assessment. Scoring retries
// up to three attempts with linearly growing backoff; exhausting them is a
// terminal error and no synthetic analysis is substituted. A storage
// failure is reported as a warning on an otherwise successful result.
func (g *Gateway) Finish(ctx context.Context, userID string, req Request) (*Result, error) {
	var analysis *Analysis
	attempt := 0
	backoff := retry.WithMaxRetries(maxAttempts-1, linearBackoff(g.baseDelay))
	var lastErr error

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		a, err := g.analyzer.Analyze(ctx, req)
		if err != nil {
			lastErr = err
			g.logger.Warn("interview analysis attempt failed",
				"attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		analysis = a
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("analysis failed after %d attempts: %w", attempt, lastErr)
	}

	result := &Result{Analysis: analysis}
	if g.store == nil {
		return result, nil
	}

	assessment, err := buildAssessment(userID, req, analysis)
	if err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("could not serialize assessment: %v", err))
		return result, nil
	}
	id, err := g.store.CreateAssessment(ctx, assessment)
	if err != nil {
		g.logger.Warn("assessment not saved", "error", err)
		result.Warnings = append(result.Warnings, fmt.Sprintf("assessment not saved: %v", err))
		return result, nil
	}
	result.AssessmentID = id
	return result, nil
}

func buildAssessment(userID string, req Request, analysis *Analysis) (Assessment, error) {
	payload, err := json.Marshal(struct {
		Job           interview.Job               `json:"job"`
		QuestionCount int                         `json:"questionCount"`
		Transcript    []interview.TranscriptEntry `json:"transcript"`
		Analysis      *Analysis                   `json:"analysis"`
	}{req.Job, req.QuestionCount, req.Entries, analysis})
	if err != nil {
		return Assessment{}, err
	}
	return Assessment{
		UserID:         userID,
		Score:          *analysis.OverallScore,
		Category:       CategoryLabel(req.Job.Title, req.Job.Company),
		ImprovementTip: analysis.ImprovementTip,
		Payload:        payload,
	}, nil
}

// CategoryLabel names the assessment for listing alongside quiz results.
func CategoryLabel(title, company string) string {
	if title == "" {
		title = "Unknown Role"
	}
	if company == "" {
		company = "Unknown Company"
	}
	return fmt.Sprintf("Live Interview: %s at %s", title, company)
}

// linearBackoff waits attempt multiples of base between tries.
func linearBackoff(base time.Duration) retry.Backoff {
	attempt := 0
	return retry.BackoffFunc(func() (time.Duration, bool) {
		attempt++
		return time.Duration(attempt) * base, false
	})
}
