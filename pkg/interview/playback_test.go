package interview

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// fakePlayer records plays and stops. With blocking set, Play parks until
// Stop releases it, simulating real-time playback duration.
type fakePlayer struct {
	mu       sync.Mutex
	played   [][]byte
	stops    int
	blocking bool
	release  chan struct{}
}

func newFakePlayer(blocking bool) *fakePlayer {
	return &fakePlayer{blocking: blocking, release: make(chan struct{})}
}

func (p *fakePlayer) Play(pcm []byte) error {
	p.mu.Lock()
	p.played = append(p.played, pcm)
	blocking := p.blocking
	release := p.release
	p.mu.Unlock()
	if blocking {
		<-release
	}
	return nil
}

func (p *fakePlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stops++
	select {
	case <-p.release:
	default:
		close(p.release)
	}
}

func (p *fakePlayer) Close() error {
	p.Stop()
	return nil
}

func (p *fakePlayer) playCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.played)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestOutputPipelinePlaysInOrder(t *testing.T) {
	player := newFakePlayer(false)
	pipe := NewOutputPipeline(player, discardLogger(), nil)
	defer pipe.Close()

	chunks := [][]byte{{1, 1}, {2, 2}, {3, 3}}
	for _, c := range chunks {
		pipe.Enqueue(c)
	}
	waitFor(t, "all chunks played", func() bool { return player.playCount() == len(chunks) })

	player.mu.Lock()
	defer player.mu.Unlock()
	for i, c := range chunks {
		if string(player.played[i]) != string(c) {
			t.Errorf("chunk %d played out of order", i)
		}
	}
}

func TestOutputPipelineSpeakingLifecycle(t *testing.T) {
	player := newFakePlayer(false)
	idle := make(chan struct{}, 4)
	pipe := NewOutputPipeline(player, discardLogger(), func() { idle <- struct{}{} })
	defer pipe.Close()

	if pipe.Speaking() {
		t.Error("Speaking = true before any audio")
	}
	pipe.Enqueue([]byte{1, 2})
	select {
	case <-idle:
	case <-time.After(2 * time.Second):
		t.Fatal("onIdle never fired after queue drained")
	}
	if pipe.Speaking() {
		t.Error("Speaking = true after queue drained")
	}
}

func TestOutputPipelineInterruptClearsQueue(t *testing.T) {
	player := newFakePlayer(true)
	pipe := NewOutputPipeline(player, discardLogger(), nil)
	defer pipe.Close()

	pipe.Enqueue([]byte{1, 1})
	waitFor(t, "first chunk to start", func() bool { return player.playCount() == 1 })
	pipe.Enqueue([]byte{2, 2})
	pipe.Enqueue([]byte{3, 3})

	pipe.Interrupt()

	if pipe.Speaking() {
		t.Error("Speaking = true after interrupt")
	}
	pipe.mu.Lock()
	queued := len(pipe.queue)
	pipe.mu.Unlock()
	if queued != 0 {
		t.Errorf("queue length after interrupt = %d, want 0", queued)
	}
	// The queued chunks were discarded, never played.
	time.Sleep(20 * time.Millisecond)
	if n := player.playCount(); n != 1 {
		t.Errorf("played %d chunks, want 1", n)
	}
}

func TestOutputPipelineInterruptInvalidatesDequeuedChunk(t *testing.T) {
	player := newFakePlayer(false)
	pipe := NewOutputPipeline(player, discardLogger(), nil)
	defer pipe.Close()

	pipe.mu.Lock()
	gen := pipe.gen
	pipe.mu.Unlock()
	if pipe.interrupted(gen) {
		t.Fatal("fresh generation reported interrupted")
	}
	pipe.Interrupt()
	if !pipe.interrupted(gen) {
		t.Error("chunk dequeued before the interrupt would still play")
	}
}

func TestOutputPipelineCloseIsIdempotent(t *testing.T) {
	player := newFakePlayer(false)
	pipe := NewOutputPipeline(player, discardLogger(), nil)
	if err := pipe.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := pipe.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	pipe.Enqueue([]byte{1})
	if pipe.Speaking() {
		t.Error("Enqueue after Close marked speaking")
	}
}
