package interview

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mubashirsidiki/ai-coach/pkg/realtime"
	"github.com/mubashirsidiki/ai-coach/pkg/realtime/protocol"
)

// fakeConn is an in-memory realtime connection the tests feed events into.
type fakeConn struct {
	events chan protocol.ServerEvent

	mu         sync.Mutex
	closed     bool
	closes     int
	cancels    int
	creates    int
	appends    []string
	sessionCfg *protocol.SessionConfig
	warning    string
}

func newFakeConn() *fakeConn {
	return &fakeConn{events: make(chan protocol.ServerEvent, 64)}
}

func (c *fakeConn) Events() <-chan protocol.ServerEvent { return c.events }

func (c *fakeConn) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

func (c *fakeConn) UpdateSession(cfg protocol.SessionConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionCfg = &cfg
	return nil
}

func (c *fakeConn) AppendAudio(audio string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("closed")
	}
	c.appends = append(c.appends, audio)
	return nil
}

func (c *fakeConn) CreateResponse() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.creates++
	return nil
}

func (c *fakeConn) CancelResponse() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancels++
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	if !c.closed {
		c.closed = true
		close(c.events)
	}
	return nil
}

func (c *fakeConn) CloseWarning() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.warning
}

func (c *fakeConn) cancelCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancels
}

// send feeds one provider event to the session under test.
func (c *fakeConn) send(e protocol.ServerEvent) {
	c.events <- e
}

type fakeCapture struct {
	mu       sync.Mutex
	onFrame  func([]float32)
	startErr error
	closes   int
}

func (f *fakeCapture) Start(onFrame func(samples []float32)) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.mu.Lock()
	f.onFrame = onFrame
	f.mu.Unlock()
	return nil
}

func (f *fakeCapture) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func (f *fakeCapture) frame(samples []float32) {
	f.mu.Lock()
	onFrame := f.onFrame
	f.mu.Unlock()
	if onFrame != nil {
		onFrame(samples)
	}
}

func testJob() Job {
	return Job{Title: "Backend Engineer", Company: "Acme", Description: "Builds APIs."}
}

func testConfig() Config {
	return Config{
		QuestionLimit:      5,
		TimeLimit:          time.Minute,
		QuestionGraceDelay: 20 * time.Millisecond,
		ResponseDelay:      time.Millisecond,
	}
}

func startTestSession(t *testing.T, cfg Config, capture CaptureDevice) (*Session, *fakeConn, *fakePlayer) {
	t.Helper()
	conn := newFakeConn()
	player := newFakePlayer(false)
	sess, err := NewSession(testJob(), cfg, SessionOptions{
		Tokens:  &realtime.StaticTokenSource{Value: realtime.Token{APIKey: "sk-test"}},
		Dialer:  func(ctx context.Context, token *realtime.Token) (Connection, error) { return conn, nil },
		Capture: capture,
		Player:  player,
		Logger:  discardLogger(),
	})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if err := sess.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { sess.End() })
	return sess, conn, player
}

// drainEvents collects session events until the channel closes.
func drainEvents(t *testing.T, sess *Session) []Event {
	t.Helper()
	var out []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case e, ok := <-sess.Events():
			if !ok {
				return out
			}
			out = append(out, e)
		case <-timeout:
			t.Fatal("timed out draining session events")
		}
	}
}

func TestStartConfiguresInterviewer(t *testing.T) {
	sess, conn, _ := startTestSession(t, testConfig(), &fakeCapture{})
	defer sess.End()

	conn.mu.Lock()
	cfg := conn.sessionCfg
	conn.mu.Unlock()
	if cfg == nil {
		t.Fatal("session.update never sent")
	}
	if cfg.Voice != realtime.DefaultVoice {
		t.Errorf("voice = %q, want %q", cfg.Voice, realtime.DefaultVoice)
	}
	if cfg.InputAudioFormat != protocol.AudioFormatPCM16 || cfg.OutputAudioFormat != protocol.AudioFormatPCM16 {
		t.Error("audio formats not pcm16")
	}
	if cfg.TurnDetection == nil || cfg.TurnDetection.Type != "server_vad" {
		t.Error("server VAD not configured")
	}
	if cfg.Instructions == "" {
		t.Error("instructions are empty")
	}

	waitFor(t, "initial response request", func() bool {
		conn.mu.Lock()
		defer conn.mu.Unlock()
		return conn.creates == 1
	})
}

func TestStartTokenFailure(t *testing.T) {
	sess, err := NewSession(testJob(), testConfig(), SessionOptions{
		Tokens: &realtime.StaticTokenSource{},
		Dialer: func(ctx context.Context, token *realtime.Token) (Connection, error) {
			t.Fatal("dialer must not run without a token")
			return nil, nil
		},
		Player: newFakePlayer(false),
		Logger: discardLogger(),
	})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	err = sess.Start(context.Background())
	if !errors.Is(err, ErrTokenUnavailable) {
		t.Errorf("Start error = %v, want ErrTokenUnavailable", err)
	}
	if got := sess.Snapshot().Status; got != StatusDisconnected {
		t.Errorf("status after failed start = %v, want disconnected", got)
	}
}

func TestStartDialFailure(t *testing.T) {
	sess, err := NewSession(testJob(), testConfig(), SessionOptions{
		Tokens: &realtime.StaticTokenSource{Value: realtime.Token{APIKey: "sk"}},
		Dialer: func(ctx context.Context, token *realtime.Token) (Connection, error) {
			return nil, errors.New("refused")
		},
		Player: newFakePlayer(false),
		Logger: discardLogger(),
	})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if err := sess.Start(context.Background()); !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Start error = %v, want ErrConnectionFailed", err)
	}
}

func TestMicrophoneDenialIsNonFatal(t *testing.T) {
	capture := &fakeCapture{startErr: errors.New("permission denied")}
	sess, _, _ := startTestSession(t, testConfig(), capture)

	snap := sess.Snapshot()
	if snap.Status != StatusConnected {
		t.Errorf("status = %v, want connected", snap.Status)
	}
	if snap.Recording {
		t.Error("recording = true despite capture failure")
	}
	if len(snap.Warnings) == 0 {
		t.Error("expected a microphone warning")
	}
}

func TestCaptureFramesAreForwarded(t *testing.T) {
	capture := &fakeCapture{}
	sess, conn, _ := startTestSession(t, testConfig(), capture)
	defer sess.End()

	capture.frame([]float32{0, 0.5, -0.5})
	conn.mu.Lock()
	appends := len(conn.appends)
	var sent string
	if appends > 0 {
		sent = conn.appends[0]
	}
	conn.mu.Unlock()
	if appends != 1 {
		t.Fatalf("appended %d frames, want 1", appends)
	}
	pcm, err := DecodeAudio(sent)
	if err != nil {
		t.Fatalf("frame not valid base64: %v", err)
	}
	if len(pcm) != 6 {
		t.Errorf("frame size = %d bytes, want 6", len(pcm))
	}
}

func TestTranscriptReconciliation(t *testing.T) {
	sess, conn, _ := startTestSession(t, testConfig(), nil)

	conn.send(protocol.TranscriptDeltaEvent{Delta: "What drew you "})
	conn.send(protocol.TranscriptDeltaEvent{Delta: "to this role?"})
	conn.send(protocol.TranscriptDoneEvent{Transcript: "What drew you to this role?"})
	// A repeated finalization of the same utterance must not duplicate the entry.
	conn.send(protocol.TranscriptDoneEvent{Transcript: "What drew you to this role?"})
	conn.send(protocol.InputTranscriptionDoneEvent{Transcript: "I enjoy distributed systems."})

	waitFor(t, "transcript entries", func() bool { return len(sess.Snapshot().Entries) == 2 })
	snap := sess.Snapshot()
	if snap.Entries[0].Speaker != SpeakerInterviewer || snap.Entries[1].Speaker != SpeakerCandidate {
		t.Error("unexpected speaker order")
	}
	// The duplicated entry is dropped from the transcript, but each
	// finalized question still counts toward the limit.
	if snap.QuestionCount != 2 {
		t.Errorf("question count = %d, want 2", snap.QuestionCount)
	}
}

func TestQuestionCountSurvivesTranscriptDedup(t *testing.T) {
	sess, conn, _ := startTestSession(t, testConfig(), nil)

	conn.send(protocol.TranscriptDoneEvent{Transcript: "Can you describe your last project?"})
	conn.send(protocol.TranscriptDoneEvent{Transcript: "Can you describe your last project?"})

	waitFor(t, "questions counted", func() bool { return sess.QuestionCount() == 2 })
	if entries := sess.Snapshot().Entries; len(entries) != 1 {
		t.Errorf("transcript entries = %d, want 1", len(entries))
	}
}

func TestQuestionCountIgnoresStatements(t *testing.T) {
	sess, conn, _ := startTestSession(t, testConfig(), nil)

	conn.send(protocol.TranscriptDoneEvent{Transcript: "Welcome, let's begin."})
	conn.send(protocol.TranscriptDoneEvent{Transcript: "What is your background?"})

	waitFor(t, "entries", func() bool { return len(sess.Snapshot().Entries) == 2 })
	if got := sess.QuestionCount(); got != 1 {
		t.Errorf("question count = %d, want 1", got)
	}
}

func TestInterruptionAtomicity(t *testing.T) {
	for _, depth := range []int{0, 1, 3} {
		t.Run(fmt.Sprintf("queue depth %d", depth), func(t *testing.T) {
			conn := newFakeConn()
			player := newFakePlayer(true)
			sess, err := NewSession(testJob(), testConfig(), SessionOptions{
				Tokens: &realtime.StaticTokenSource{Value: realtime.Token{APIKey: "sk"}},
				Dialer: func(ctx context.Context, token *realtime.Token) (Connection, error) { return conn, nil },
				Player: player,
				Logger: discardLogger(),
			})
			if err != nil {
				t.Fatalf("NewSession: %v", err)
			}
			if err := sess.Start(context.Background()); err != nil {
				t.Fatalf("Start: %v", err)
			}
			defer sess.End()

			// First delta starts blocking playback; the rest stay queued.
			for i := 0; i <= depth; i++ {
				conn.send(protocol.AudioDeltaEvent{Delta: EncodeAudio([]byte{1, 2, 3, 4})})
			}
			waitFor(t, "playback to start", func() bool { return player.playCount() == 1 })
			waitFor(t, "queue to fill", func() bool {
				sess.output.mu.Lock()
				defer sess.output.mu.Unlock()
				return len(sess.output.queue) == depth
			})

			conn.send(protocol.SpeechStartedEvent{})
			waitFor(t, "cancel command", func() bool { return conn.cancelCount() == 1 })

			sess.output.mu.Lock()
			queued := len(sess.output.queue)
			sess.output.mu.Unlock()
			if queued != 0 {
				t.Errorf("queue length = %d, want 0", queued)
			}
			snap := sess.Snapshot()
			if snap.Speaking.Bot {
				t.Error("bot speaking flag still set after interruption")
			}
			if !snap.Speaking.User {
				t.Error("user speaking flag not set")
			}
			sess.mu.Lock()
			active := sess.responseActive
			sess.mu.Unlock()
			if active {
				t.Error("response still marked active after interruption")
			}
		})
	}
}

func TestCancelRaceOutcomesAreEquivalent(t *testing.T) {
	outcomes := []protocol.ServerEvent{
		protocol.ResponseCancelledEvent{},
		protocol.ErrorEvent{Code: protocol.ErrCodeCancelNotActive, Message: "no active response"},
	}
	for _, outcome := range outcomes {
		sess, conn, _ := startTestSession(t, testConfig(), nil)

		conn.send(protocol.AudioDeltaEvent{Delta: EncodeAudio([]byte{1, 2})})
		waitFor(t, "response active", func() bool {
			sess.mu.Lock()
			defer sess.mu.Unlock()
			return sess.responseActive
		})
		conn.send(outcome)
		if _, isErr := outcome.(protocol.ErrorEvent); !isErr {
			waitFor(t, "response cleared", func() bool {
				sess.mu.Lock()
				defer sess.mu.Unlock()
				return !sess.responseActive
			})
		}
		if warnings := sess.Snapshot().Warnings; len(warnings) != 0 {
			t.Errorf("cancel outcome produced warnings: %v", warnings)
		}
		sess.End()
	}
}

func TestEmptyErrorEventIsIgnored(t *testing.T) {
	sess, conn, _ := startTestSession(t, testConfig(), nil)

	conn.send(protocol.ErrorEvent{})
	conn.send(protocol.TranscriptDoneEvent{Transcript: "Still here?"})

	waitFor(t, "entry", func() bool { return len(sess.Snapshot().Entries) == 1 })
	snap := sess.Snapshot()
	if len(snap.Warnings) != 0 {
		t.Errorf("empty error produced warnings: %v", snap.Warnings)
	}
	if snap.Status != StatusConnected {
		t.Errorf("status = %v, want connected", snap.Status)
	}
}

func TestProviderErrorSurfacesAsWarning(t *testing.T) {
	sess, conn, _ := startTestSession(t, testConfig(), nil)

	conn.send(protocol.ErrorEvent{Message: "rate limited"})
	waitFor(t, "warning", func() bool { return len(sess.Snapshot().Warnings) == 1 })
	if got := sess.Snapshot().Status; got != StatusConnected {
		t.Errorf("status after provider error = %v, want connected", got)
	}
}

func TestEndIsIdempotent(t *testing.T) {
	capture := &fakeCapture{}
	sess, conn, _ := startTestSession(t, testConfig(), capture)

	conn.send(protocol.TranscriptDoneEvent{Transcript: "First question?"})
	waitFor(t, "entry", func() bool { return len(sess.Snapshot().Entries) == 1 })

	first := sess.End()
	second := sess.End()

	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("transcript lengths = %d, %d, want 1, 1", len(first), len(second))
	}
	if first[0] != second[0] {
		t.Error("repeated End returned different transcripts")
	}
	conn.mu.Lock()
	closes := conn.closes
	conn.mu.Unlock()
	if closes != 1 {
		t.Errorf("connection closed %d times, want 1", closes)
	}
	capture.mu.Lock()
	capCloses := capture.closes
	capture.mu.Unlock()
	if capCloses != 1 {
		t.Errorf("capture closed %d times, want 1", capCloses)
	}
	if got := sess.Snapshot().Status; got != StatusDisconnected {
		t.Errorf("status after End = %v, want disconnected", got)
	}
}

func TestCleanFiveQuestionSession(t *testing.T) {
	sess, conn, _ := startTestSession(t, testConfig(), nil)

	for i := 0; i < 5; i++ {
		conn.send(protocol.TranscriptDoneEvent{Transcript: fmt.Sprintf("Question number %d?", i+1)})
		conn.send(protocol.InputTranscriptionDoneEvent{Transcript: fmt.Sprintf("Answer number %d.", i+1)})
	}

	events := drainEvents(t, sess)
	var terminated *TerminatedEvent
	for _, e := range events {
		if te, ok := e.(*TerminatedEvent); ok {
			if terminated != nil {
				t.Fatal("terminated more than once")
			}
			terminated = te
		}
	}
	if terminated == nil {
		t.Fatal("session never terminated")
	}
	if terminated.Reason != ReasonQuestionLimit {
		t.Errorf("termination reason = %q, want %q", terminated.Reason, ReasonQuestionLimit)
	}
	if terminated.QuestionCount != 5 {
		t.Errorf("question count = %d, want 5", terminated.QuestionCount)
	}
	transcript := sess.End()
	if len(transcript) != 10 {
		t.Errorf("transcript length = %d, want 10", len(transcript))
	}
}

func TestTerminationRaceFiresOnce(t *testing.T) {
	cfg := Config{
		QuestionLimit:      1,
		TimeLimit:          30 * time.Millisecond,
		QuestionGraceDelay: 25 * time.Millisecond,
		ResponseDelay:      time.Millisecond,
	}
	sess, conn, _ := startTestSession(t, cfg, nil)

	conn.send(protocol.TranscriptDoneEvent{Transcript: "Only question?"})

	events := drainEvents(t, sess)
	count := 0
	for _, e := range events {
		if _, ok := e.(*TerminatedEvent); ok {
			count++
		}
	}
	if count != 1 {
		t.Errorf("terminated %d times, want exactly 1", count)
	}
	conn.mu.Lock()
	closes := conn.closes
	conn.mu.Unlock()
	if closes != 1 {
		t.Errorf("connection closed %d times, want 1", closes)
	}
}

func TestRemoteCloseWarningSurfaces(t *testing.T) {
	sess, conn, _ := startTestSession(t, testConfig(), nil)

	conn.mu.Lock()
	conn.warning = "connection closed: overloaded"
	conn.closed = true
	close(conn.events)
	conn.mu.Unlock()

	waitFor(t, "close warning", func() bool {
		for _, w := range sess.Snapshot().Warnings {
			if w == "connection closed: overloaded" {
				return true
			}
		}
		return false
	})
}

func TestStartTwiceFails(t *testing.T) {
	sess, _, _ := startTestSession(t, testConfig(), nil)
	if err := sess.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start error = %v, want ErrAlreadyStarted", err)
	}
}
