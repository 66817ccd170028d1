package viewer

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Player is the local media element the corrector drives
type Player interface {
	Load(url string)
	Play()
	Pause()
	Paused() bool
	Seek(position time.Duration)
	Position() time.Duration
}

// SimulatedPlayer is a headless Player whose position advances with the
// clock. A rate other than 1 makes it drift.
type SimulatedPlayer struct {
	clock clockwork.Clock
	rate  float64

	mu       sync.Mutex
	url      string
	paused   bool
	base     time.Duration
	resumeAt time.Time
}

func NewSimulatedPlayer(clock clockwork.Clock, rate float64) *SimulatedPlayer {
	if rate <= 0 {
		rate = 1
	}
	return &SimulatedPlayer{clock: clock, rate: rate, paused: true}
}

func (p *SimulatedPlayer) Load(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
	p.base = 0
	p.paused = true
}

func (p *SimulatedPlayer) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *SimulatedPlayer) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.paused {
		return
	}
	p.paused = false
	p.resumeAt = p.clock.Now()
}

func (p *SimulatedPlayer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paused {
		return
	}
	p.base = p.positionLocked()
	p.paused = true
}

func (p *SimulatedPlayer) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

func (p *SimulatedPlayer) Seek(position time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if position < 0 {
		position = 0
	}
	p.base = position
	p.resumeAt = p.clock.Now()
}

func (p *SimulatedPlayer) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.positionLocked()
}

func (p *SimulatedPlayer) positionLocked() time.Duration {
	if p.paused {
		return p.base
	}
	played := p.clock.Since(p.resumeAt)
	return p.base + time.Duration(float64(played)*p.rate)
}
