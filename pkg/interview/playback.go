package interview

import (
	"fmt"
	"log/slog"
	"sync"
)

// Player renders one PCM chunk at a time. Play blocks until the chunk has
// finished or Stop aborts it. Implementations must make Stop and Close safe
// to call at any time, including concurrently with Play.
type Player interface {
	// Play renders a 24 kHz mono 16-bit PCM buffer to completion.
	Play(pcm []byte) error

	// Stop aborts the chunk currently being rendered, if any.
	Stop()

	// Close releases the output device. The Player is unusable afterwards.
	Close() error
}

// OutputPipeline plays synthesized speech chunks strictly in enqueue order.
// Provider audio deltas arrive in bursts faster than real-time playback, so
// chunks queue here and a single loop drains them one at a time.
type OutputPipeline struct {
	player Player
	logger *slog.Logger

	// onIdle runs on the playback goroutine whenever the queue drains or
	// playback is interrupted.
	onIdle func()

	mu       sync.Mutex
	queue    [][]byte
	speaking bool
	closed   bool
	// gen advances on every Interrupt or Close. A chunk dequeued under an
	// older generation is dropped instead of played, so an interrupt landing
	// between dequeue and Play still silences it.
	gen  uint64
	wake chan struct{}
	done chan struct{}
}

// NewOutputPipeline starts the playback loop. onIdle may be nil.
func NewOutputPipeline(player Player, logger *slog.Logger, onIdle func()) *OutputPipeline {
	if logger == nil {
		logger = slog.Default()
	}
	p := &OutputPipeline{
		player: player,
		logger: logger,
		onIdle: onIdle,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go p.loop()
	return p
}

// Enqueue appends one PCM chunk to the playback queue.
func (p *OutputPipeline) Enqueue(pcm []byte) {
	if len(pcm) == 0 {
		return
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.queue = append(p.queue, pcm)
	p.speaking = true
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Speaking reports whether queued or in-flight audio remains.
func (p *OutputPipeline) Speaking() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.speaking
}

// Interrupt discards the queue and aborts the chunk being played. Safe to
// call when nothing is playing.
func (p *OutputPipeline) Interrupt() {
	p.mu.Lock()
	p.queue = nil
	p.speaking = false
	p.gen++
	p.mu.Unlock()
	p.player.Stop()
}

// Close interrupts playback, stops the loop, and releases the device.
// Idempotent.
func (p *OutputPipeline) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.done
		return nil
	}
	p.closed = true
	p.queue = nil
	p.speaking = false
	p.gen++
	p.mu.Unlock()

	p.player.Stop()
	select {
	case p.wake <- struct{}{}:
	default:
	}
	<-p.done
	if err := p.player.Close(); err != nil {
		return fmt.Errorf("close audio output: %w", err)
	}
	return nil
}

func (p *OutputPipeline) loop() {
	defer close(p.done)
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return
		}
		if len(p.queue) == 0 {
			hadAudio := p.speaking
			p.speaking = false
			p.mu.Unlock()
			if hadAudio && p.onIdle != nil {
				p.onIdle()
			}
			<-p.wake
			continue
		}
		chunk := p.queue[0]
		p.queue = p.queue[1:]
		gen := p.gen
		p.mu.Unlock()

		if p.interrupted(gen) {
			continue
		}
		if err := p.player.Play(chunk); err != nil {
			p.logger.Warn("audio playback failed", "error", err)
		}
	}
}

// interrupted reports whether Interrupt or Close ran after the chunk with
// this generation was dequeued.
func (p *OutputPipeline) interrupted(gen uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed || p.gen != gen
}
