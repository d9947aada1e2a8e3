// Package interview runs a live voice interview over a realtime speech
// connection. A Session owns the connection, the microphone input pipeline,
// the speech output pipeline, the reconciled transcript, and the
// termination policy. All provider events are handled on one goroutine, so
// transcript order and question counting never race.
package interview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mubashirsidiki/ai-coach/pkg/realtime"
	"github.com/mubashirsidiki/ai-coach/pkg/realtime/protocol"
)

// Start failure classes. Microphone denial is deliberately absent: a
// session without capture still runs, it just surfaces a warning.
var (
	ErrTokenUnavailable = errors.New("session token unavailable")
	ErrConnectionFailed = errors.New("realtime connection failed")
	ErrAlreadyStarted   = errors.New("session already started")
)

const transcriptionModel = "whisper-1"

// Connection is the slice of the realtime client a session drives. It is
// satisfied by *realtime.Conn.
type Connection interface {
	Events() <-chan protocol.ServerEvent
	IsOpen() bool
	UpdateSession(protocol.SessionConfig) error
	AppendAudio(audio string) error
	CreateResponse() error
	CancelResponse() error
	Close() error
	CloseWarning() string
}

// Dialer opens a realtime connection with an issued token.
type Dialer func(ctx context.Context, token *realtime.Token) (Connection, error)

// DefaultDialer connects to the provider's production endpoint.
func DefaultDialer(logger *slog.Logger) Dialer {
	return func(ctx context.Context, token *realtime.Token) (Connection, error) {
		return realtime.Dial(ctx, realtime.DialConfig{
			Model:  token.Model,
			APIKey: token.APIKey,
			Logger: logger,
		})
	}
}

// SessionOptions carries the collaborators a session composes.
type SessionOptions struct {
	Tokens realtime.TokenSource

	// Dialer defaults to DefaultDialer.
	Dialer Dialer

	// Capture may be nil; the session then runs without a microphone and
	// records a warning.
	Capture CaptureDevice

	Player Player

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Session is a single live interview. Create with NewSession, drive with
// Start and End. Not reusable after End.
type Session struct {
	job    Job
	cfg    Config
	tokens realtime.TokenSource
	dialer Dialer
	logger *slog.Logger

	capture CaptureDevice
	player  Player

	conn   Connection
	input  *InputPipeline
	output *OutputPipeline

	events   chan Event
	loopDone chan struct{}

	mu             sync.Mutex
	status         Status
	recording      bool
	speaking       SpeakingState
	transcript     Transcript
	questionCount  int
	botBuffer      string
	responseActive bool
	terminating    bool
	startedAt      time.Time
	timeLimit      time.Duration
	warnings       []string
	wallTimer      *time.Timer
	graceTimer     *time.Timer
	responseTimer  *time.Timer

	endOnce sync.Once
	final   []TranscriptEntry
}

// NewSession builds a session for one job interview.
func NewSession(job Job, cfg Config, opts SessionOptions) (*Session, error) {
	if opts.Tokens == nil {
		return nil, fmt.Errorf("token source is required")
	}
	if opts.Player == nil {
		return nil, fmt.Errorf("player is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = DefaultDialer(logger)
	}
	return &Session{
		job:      job,
		cfg:      cfg.withDefaults(),
		tokens:   opts.Tokens,
		dialer:   dialer,
		capture:  opts.Capture,
		player:   opts.Player,
		logger:   logger,
		events:   make(chan Event, 64),
		loopDone: make(chan struct{}),
		status:   StatusDisconnected,
	}, nil
}

// Events yields session events for presentation. Events are dropped, not
// queued indefinitely, when the consumer falls behind.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Start acquires a token, connects, configures the interviewer, begins
// microphone capture, and arms the termination timers. A capture failure
// is a warning, not an error; token and connection failures are fatal.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.status != StatusDisconnected || s.final != nil {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.setStatusLocked(StatusConnecting)
	s.mu.Unlock()

	token, err := s.tokens.Token(ctx)
	if err != nil {
		s.failStart()
		return fmt.Errorf("%w: %v", ErrTokenUnavailable, err)
	}

	conn, err := s.dialer(ctx, token)
	if err != nil {
		s.failStart()
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	session := protocol.SessionConfig{
		Modalities:              []string{"text", "audio"},
		Instructions:            Instructions(s.job, s.cfg.QuestionLimit),
		Voice:                   token.Voice,
		InputAudioFormat:        protocol.AudioFormatPCM16,
		OutputAudioFormat:       protocol.AudioFormatPCM16,
		InputAudioTranscription: &protocol.AudioTranscription{Model: transcriptionModel},
		TurnDetection:           protocol.DefaultTurnDetection(),
		Temperature:             0.8,
	}
	if err := conn.UpdateSession(session); err != nil {
		_ = conn.Close()
		s.failStart()
		return fmt.Errorf("%w: configure session: %v", ErrConnectionFailed, err)
	}

	timeLimit := s.cfg.TimeLimit
	if timeLimit <= 0 {
		timeLimit = token.TimeLimit
	}

	s.mu.Lock()
	s.conn = conn
	s.output = NewOutputPipeline(s.player, s.logger, s.playbackIdle)
	s.startedAt = time.Now()
	s.timeLimit = timeLimit
	s.setStatusLocked(StatusConnected)
	s.wallTimer = time.AfterFunc(timeLimit, func() { s.terminate(ReasonTimeLimit) })
	s.responseTimer = time.AfterFunc(s.cfg.ResponseDelay, func() {
		if err := conn.CreateResponse(); err != nil {
			s.warn(fmt.Sprintf("could not start interviewer: %v", err))
		}
	})
	s.mu.Unlock()

	if s.capture != nil {
		input := NewInputPipeline(s.capture, conn, s.logger)
		if err := input.Start(); err != nil {
			s.warn(fmt.Sprintf("microphone unavailable, continuing without audio input: %v", err))
		} else {
			s.mu.Lock()
			s.input = input
			s.recording = true
			s.mu.Unlock()
		}
	} else {
		s.logger.Info("no capture device configured, running without audio input")
	}

	go s.run()
	return nil
}

// End tears the session down and returns the finalized transcript. Safe to
// call any number of times and concurrently with event handling; later
// calls return the same transcript.
func (s *Session) End() []TranscriptEntry {
	s.endOnce.Do(func() {
		s.mu.Lock()
		started := s.conn != nil
		if started {
			s.setStatusLocked(StatusClosing)
		}
		s.terminating = true
		s.stopTimersLocked()
		input := s.input
		conn := s.conn
		output := s.output
		s.mu.Unlock()

		if input != nil {
			_ = input.Close()
		}
		if conn != nil {
			_ = conn.Close()
			<-s.loopDone
		}
		if output != nil {
			_ = output.Close()
		}

		s.mu.Lock()
		s.final = s.transcript.Entries()
		s.recording = false
		s.speaking = SpeakingState{}
		s.responseActive = false
		s.botBuffer = ""
		s.setStatusLocked(StatusDisconnected)
		s.mu.Unlock()
		close(s.events)
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.final
}

// Snapshot returns a read-only copy of live state for presentation.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	warnings := make([]string, len(s.warnings))
	copy(warnings, s.warnings)
	return Snapshot{
		Status:        s.status,
		Recording:     s.recording,
		QuestionCount: s.questionCount,
		QuestionLimit: s.cfg.QuestionLimit,
		TimeLimit:     s.timeLimit,
		Speaking:      s.speaking,
		StartedAt:     s.startedAt,
		Entries:       s.transcript.Entries(),
		Warnings:      warnings,
	}
}

// QuestionCount returns the number of questions asked so far.
func (s *Session) QuestionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.questionCount
}

// Job returns the position this session interviews for.
func (s *Session) Job() Job {
	return s.job
}

func (s *Session) failStart() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setStatusLocked(StatusDisconnected)
}

// terminate runs teardown for exactly one limit trigger. The terminating
// flag arbitrates between the question-count path, the wall-clock path,
// and an explicit End.
func (s *Session) terminate(reason string) {
	s.mu.Lock()
	if s.terminating {
		s.mu.Unlock()
		return
	}
	s.terminating = true
	s.stopTimersLocked()
	count := s.questionCount
	s.mu.Unlock()

	s.emit(&TerminatedEvent{Reason: reason, QuestionCount: count})
	go s.End()
}

// stopTimersLocked disarms every pending timer. Caller holds mu.
func (s *Session) stopTimersLocked() {
	for _, t := range []*time.Timer{s.wallTimer, s.graceTimer, s.responseTimer} {
		if t != nil {
			t.Stop()
		}
	}
}

// run is the single consumer of provider events.
func (s *Session) run() {
	defer close(s.loopDone)
	for event := range s.conn.Events() {
		s.handleEvent(event)
	}
	if w := s.conn.CloseWarning(); w != "" {
		s.warn(w)
	}
}

// handleEvent applies one provider event. It runs only on the run
// goroutine, which is what makes interruption atomic: no audio delta can
// be enqueued between the queue clear and the cancel send.
func (s *Session) handleEvent(event protocol.ServerEvent) {
	switch e := event.(type) {
	case protocol.AudioDeltaEvent:
		pcm, err := DecodeAudio(e.Delta)
		if err != nil {
			s.logger.Debug("dropping undecodable audio delta", "error", err)
			return
		}
		s.mu.Lock()
		s.responseActive = true
		changed := !s.speaking.Bot
		s.speaking.Bot = true
		state := s.speaking
		output := s.output
		s.mu.Unlock()
		if changed {
			s.emit(&SpeakingChangedEvent{Speaking: state})
		}
		output.Enqueue(pcm)

	case protocol.TranscriptDeltaEvent:
		s.mu.Lock()
		s.botBuffer += e.Delta
		s.mu.Unlock()

	case protocol.TranscriptDoneEvent:
		s.finalizeBotUtterance(e.Transcript)

	case protocol.InputTranscriptionDoneEvent:
		s.mu.Lock()
		added := s.transcript.Append(SpeakerCandidate, e.Transcript, time.Now())
		var entry TranscriptEntry
		if added {
			entries := s.transcript.Entries()
			entry = entries[len(entries)-1]
		}
		changed := s.speaking.User
		s.speaking.User = false
		state := s.speaking
		s.mu.Unlock()
		if added {
			s.emit(&EntryAddedEvent{Entry: entry})
		}
		if changed {
			s.emit(&SpeakingChangedEvent{Speaking: state})
		}

	case protocol.SpeechStartedEvent:
		s.mu.Lock()
		s.speaking.User = true
		interrupt := s.speaking.Bot && s.responseActive
		if interrupt {
			s.speaking.Bot = false
			s.responseActive = false
			s.botBuffer = ""
		}
		state := s.speaking
		output := s.output
		conn := s.conn
		s.mu.Unlock()
		if interrupt {
			output.Interrupt()
			if err := conn.CancelResponse(); err != nil {
				s.logger.Debug("cancel send failed", "error", err)
			}
		}
		s.emit(&SpeakingChangedEvent{Speaking: state})

	case protocol.SpeechStoppedEvent:
		s.mu.Lock()
		changed := s.speaking.User
		s.speaking.User = false
		state := s.speaking
		s.mu.Unlock()
		if changed {
			s.emit(&SpeakingChangedEvent{Speaking: state})
		}

	case protocol.ResponseCancelledEvent:
		s.clearResponse(true)

	case protocol.ResponseDoneEvent:
		s.clearResponse(false)

	case protocol.ContentPartDoneEvent:
		s.clearResponse(false)

	case protocol.ErrorEvent:
		if e.Benign() || e.Empty() {
			s.logger.Debug("ignoring benign provider error", "code", e.Code)
			return
		}
		s.warn(e.Message)

	case protocol.UnknownEvent:
		s.logger.Debug("ignoring unhandled event", "type", e.Type)
	}
}

// finalizeBotUtterance flushes the in-progress interviewer utterance into
// the transcript and advances the question count. The count tracks every
// finalized question as heard, so a repeated finalization still counts even
// though the transcript de-duplicates the entry.
func (s *Session) finalizeBotUtterance(transcript string) {
	s.mu.Lock()
	text := transcript
	if text == "" {
		text = s.botBuffer
	}
	s.botBuffer = ""
	if IsQuestion(text) {
		s.questionCount++
	}
	added := s.transcript.Append(SpeakerInterviewer, text, time.Now())
	var entry TranscriptEntry
	if added {
		entries := s.transcript.Entries()
		entry = entries[len(entries)-1]
	}
	limitHit := s.questionCount >= s.cfg.QuestionLimit && !s.terminating && s.graceTimer == nil
	if limitHit {
		// The grace delay lets the candidate's final answer land before
		// teardown.
		s.graceTimer = time.AfterFunc(s.cfg.QuestionGraceDelay, func() {
			s.terminate(ReasonQuestionLimit)
		})
	}
	s.mu.Unlock()

	if added {
		s.emit(&EntryAddedEvent{Entry: entry})
	}
}

// clearResponse marks the in-flight response finished. Cancellation also
// discards the partial utterance buffer; natural completion keeps it for
// the transcript-done event that follows.
func (s *Session) clearResponse(cancelled bool) {
	s.mu.Lock()
	changed := s.speaking.Bot
	s.responseActive = false
	s.speaking.Bot = false
	if cancelled {
		s.botBuffer = ""
	}
	state := s.speaking
	s.mu.Unlock()
	if changed {
		s.emit(&SpeakingChangedEvent{Speaking: state})
	}
}

// playbackIdle runs on the output pipeline's goroutine when the speech
// queue drains naturally.
func (s *Session) playbackIdle() {
	s.mu.Lock()
	changed := s.speaking.Bot && !s.responseActive
	if changed {
		s.speaking.Bot = false
	}
	state := s.speaking
	s.mu.Unlock()
	if changed {
		s.emit(&SpeakingChangedEvent{Speaking: state})
	}
}

func (s *Session) setStatusLocked(to Status) {
	if s.status == to {
		return
	}
	from := s.status
	s.status = to
	s.emit(&StatusChangedEvent{From: from, To: to})
}

func (s *Session) warn(message string) {
	s.logger.Warn(message)
	s.mu.Lock()
	s.warnings = append(s.warnings, message)
	s.mu.Unlock()
	s.emit(&WarningEvent{Message: message})
}

func (s *Session) emit(event Event) {
	defer func() {
		// Emitting after End closed the channel is benign.
		_ = recover()
	}()
	select {
	case s.events <- event:
	default:
		// Channel full, drop event
	}
}
