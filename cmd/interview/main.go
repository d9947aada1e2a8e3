// Command interview runs a live voice mock interview from the terminal:
// microphone in, synthesized interviewer out, with the scored assessment
// printed (and optionally saved) when the session ends.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mubashirsidiki/ai-coach/internal/dotenv"
	"github.com/mubashirsidiki/ai-coach/pkg/analysis"
	"github.com/mubashirsidiki/ai-coach/pkg/interview"
	"github.com/mubashirsidiki/ai-coach/pkg/realtime"
)

type options struct {
	title       string
	company     string
	description string

	tokenURL string
	apiKey   string
	model    string
	voice    string

	timeLimit     time.Duration
	questionLimit int

	userID      string
	geminiKey   string
	geminiModel string
	databaseURL string
	migrate     bool
	debug       bool
}

func main() {
	os.Exit(runMain())
}

func runMain() int {
	if err := dotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}

	var opt options
	flag.StringVar(&opt.title, "title", "Software Engineer", "Job title to interview for")
	flag.StringVar(&opt.company, "company", "", "Company name")
	flag.StringVar(&opt.description, "description", "", "Job description text")
	flag.StringVar(&opt.tokenURL, "token-url", dotenv.String("INTERVIEW_TOKEN_URL", ""), "Token endpoint URL (also INTERVIEW_TOKEN_URL)")
	flag.StringVar(&opt.apiKey, "api-key", dotenv.String("OPENAI_API_KEY", ""), "Realtime API key, used when no token endpoint is set (also OPENAI_API_KEY)")
	flag.StringVar(&opt.model, "model", dotenv.String("REALTIME_MODEL", ""), "Realtime model override")
	flag.StringVar(&opt.voice, "voice", dotenv.String("REALTIME_VOICE", ""), "Interviewer voice override")
	flag.DurationVar(&opt.timeLimit, "time-limit", dotenv.Duration("INTERVIEW_TIME_LIMIT", 0), "Session time limit, 0 uses the token's limit")
	flag.IntVar(&opt.questionLimit, "questions", dotenv.Int("INTERVIEW_QUESTIONS", 0), "Question limit, 0 uses the default")
	flag.StringVar(&opt.userID, "user", dotenv.String("INTERVIEW_USER", "local"), "User id recorded with the assessment")
	flag.StringVar(&opt.geminiKey, "gemini-key", dotenv.String("GEMINI_API_KEY", ""), "Scoring API key; scoring is skipped when empty (also GEMINI_API_KEY)")
	flag.StringVar(&opt.geminiModel, "gemini-model", dotenv.String("GEMINI_MODEL", ""), "Scoring model override")
	flag.StringVar(&opt.databaseURL, "db", dotenv.String("DATABASE_URL", ""), "Postgres URL for saving assessments; skipped when empty (also DATABASE_URL)")
	flag.BoolVar(&opt.migrate, "migrate", false, "Run database migrations before starting")
	flag.BoolVar(&opt.debug, "debug", false, "Verbose logging")
	flag.Parse()

	level := slog.LevelInfo
	if opt.debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := run(opt, logger); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}

func run(opt options, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tokens, err := tokenSource(opt)
	if err != nil {
		return err
	}

	player, err := interview.NewOtoPlayer()
	if err != nil {
		return fmt.Errorf("audio output: %w", err)
	}

	var capture interview.CaptureDevice
	if mic, err := interview.NewMalgoCapture(); err != nil {
		logger.Warn("microphone unavailable", "error", err)
	} else {
		capture = mic
	}

	job := interview.Job{Title: opt.title, Company: opt.company, Description: opt.description}
	cfg := interview.Config{
		QuestionLimit: opt.questionLimit,
		TimeLimit:     opt.timeLimit,
	}
	sess, err := interview.NewSession(job, cfg, interview.SessionOptions{
		Tokens:  tokens,
		Capture: capture,
		Player:  player,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Starting interview for %s", opt.title)
	if opt.company != "" {
		fmt.Printf(" at %s", opt.company)
	}
	fmt.Println(". Press Ctrl-C to end early.")

	if err := sess.Start(ctx); err != nil {
		return err
	}

	runUntilDone(ctx, sess)
	transcript := sess.End()

	fmt.Printf("\nInterview over: %d questions, %d transcript entries.\n",
		sess.QuestionCount(), len(transcript))

	if opt.geminiKey == "" {
		logger.Info("no scoring key configured, skipping analysis")
		return nil
	}
	return scoreAndReport(context.Background(), opt, sess, transcript, logger)
}

// runUntilDone prints live session events until termination or interrupt.
func runUntilDone(ctx context.Context, sess *interview.Session) {
	botSpeaking := false
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sess.Events():
			if !ok {
				return
			}
			switch ev := e.(type) {
			case *interview.EntryAddedEvent:
				fmt.Printf("%s: %s\n", ev.Entry.Speaker, ev.Entry.Text)
			case *interview.SpeakingChangedEvent:
				if ev.Speaking.Bot && !botSpeaking {
					fmt.Println("(interviewer speaking)")
				}
				botSpeaking = ev.Speaking.Bot
			case *interview.WarningEvent:
				fmt.Fprintln(os.Stderr, "warning:", ev.Message)
			case *interview.TerminatedEvent:
				fmt.Printf("(session ending: %s)\n", ev.Reason)
			}
		}
	}
}

func tokenSource(opt options) (realtime.TokenSource, error) {
	if opt.tokenURL != "" {
		return &realtime.HTTPTokenSource{Endpoint: opt.tokenURL}, nil
	}
	if opt.apiKey != "" {
		return &realtime.StaticTokenSource{Value: realtime.Token{
			APIKey:    opt.apiKey,
			Model:     opt.model,
			Voice:     opt.voice,
			TimeLimit: opt.timeLimit,
		}}, nil
	}
	return nil, fmt.Errorf("either -token-url or -api-key is required")
}

func scoreAndReport(ctx context.Context, opt options, sess *interview.Session, transcript []interview.TranscriptEntry, logger *slog.Logger) error {
	analyzer, err := analysis.NewGeminiAnalyzer(ctx, opt.geminiKey, opt.geminiModel, logger)
	if err != nil {
		return err
	}

	var store analysis.Store
	if opt.databaseURL != "" {
		pg, err := analysis.NewPGStore(ctx, opt.databaseURL)
		if err != nil {
			return err
		}
		defer pg.Close()
		if opt.migrate {
			if err := pg.Migrate(ctx); err != nil {
				return err
			}
		}
		store = pg
	}

	result, err := analysis.NewGateway(analyzer, store, logger).Finish(ctx, opt.userID, analysis.Request{
		Entries:       transcript,
		QuestionCount: sess.QuestionCount(),
		Job:           sess.Job(),
	})
	if err != nil {
		return err
	}

	a := result.Analysis
	fmt.Println("\nAssessment")
	fmt.Printf("  Overall:          %.0f\n", *a.OverallScore)
	fmt.Printf("  Communication:    %.0f\n", *a.CommunicationScore)
	fmt.Printf("  Technical:        %.0f\n", *a.TechnicalScore)
	fmt.Printf("  Response quality: %.0f\n", *a.ResponseQualityScore)
	if a.Feedback != "" {
		fmt.Println("\n" + a.Feedback)
	}
	for _, s := range a.Strengths {
		fmt.Println("  + " + s)
	}
	for _, w := range a.Weaknesses {
		fmt.Println("  - " + w)
	}
	if a.ImprovementTip != "" {
		fmt.Println("\nTip:", a.ImprovementTip)
	}
	if result.AssessmentID != 0 {
		fmt.Printf("\nSaved as assessment %d.\n", result.AssessmentID)
	}
	for _, w := range result.Warnings {
		fmt.Fprintln(os.Stderr, "warning:", w)
	}
	return nil
}
