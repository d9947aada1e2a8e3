package interview

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// OtoPlayer renders PCM chunks through the system's audio output.
type OtoPlayer struct {
	ctx *oto.Context

	mu      sync.Mutex
	current *oto.Player
	stopped bool
}

// NewOtoPlayer opens the output device at the connection's audio format and
// waits for the device to become ready.
func NewOtoPlayer() (*OtoPlayer, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   SampleRate,
		ChannelCount: Channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   100 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("open audio output: %w", err)
	}
	<-ready
	return &OtoPlayer{ctx: ctx}, nil
}

// Play renders one chunk to completion, returning early if Stop aborts it.
func (p *OtoPlayer) Play(pcm []byte) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	player := p.ctx.NewPlayer(bytes.NewReader(pcm))
	p.current = player
	p.stopped = false
	p.mu.Unlock()

	player.Play()
	for player.IsPlaying() {
		p.mu.Lock()
		aborted := p.stopped
		p.mu.Unlock()
		if aborted {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	p.mu.Lock()
	if p.current == player {
		p.current = nil
	}
	p.stopped = false
	p.mu.Unlock()
	return player.Close()
}

// Stop aborts the chunk currently playing, if any.
func (p *OtoPlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != nil {
		p.stopped = true
		p.current.Pause()
	}
}

// Close releases the output device after stopping playback.
func (p *OtoPlayer) Close() error {
	p.Stop()
	return nil
}
