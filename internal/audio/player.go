// Package audio plays short synthesized cues for game events.
package audio

import (
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"
	"github.com/rs/zerolog"
)

const sampleRate = beep.SampleRate(44100)

// Player renders game cues through the speaker. Until Init succeeds every
// cue is a no-op, so a host without an audio device still plays silently.
type Player struct {
	mu          sync.Mutex
	mixer       *beep.Mixer
	volume      float64
	initialized bool
	log         zerolog.Logger
}

// NewPlayer creates a player at the given volume in [0,1].
func NewPlayer(volume float64, log zerolog.Logger) *Player {
	return &Player{
		mixer:  &beep.Mixer{},
		volume: min(max(volume, 0), 1),
		log:    log,
	}
}

// Init opens the speaker. Calling it twice is a no-op.
func (p *Player) Init() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.initialized {
		return nil
	}
	if err := speaker.Init(sampleRate, sampleRate.N(100*time.Millisecond)); err != nil {
		return err
	}
	speaker.Play(p.mixer)
	p.initialized = true
	p.log.Info().Int("sample_rate", int(sampleRate)).Msg("audio ready")
	return nil
}

// Close silences everything queued. The speaker itself stays open.
func (p *Player) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return
	}
	speaker.Lock()
	p.mixer.Clear()
	speaker.Unlock()
	p.initialized = false
}

// Enabled reports whether cues reach the speaker.
func (p *Player) Enabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.initialized
}

// OnTap plays a short click.
func (p *Player) OnTap() {
	p.play(tone(880, 40*time.Millisecond, 0.25*p.volume))
}

// OnMatch plays a rising two-note chime.
func (p *Player) OnMatch() {
	p.play(beep.Seq(
		tone(660, 80*time.Millisecond, 0.3*p.volume),
		tone(990, 120*time.Millisecond, 0.3*p.volume),
	))
}

// OnLevelWin plays a major arpeggio.
func (p *Player) OnLevelWin() {
	p.play(arpeggio([]float64{523.25, 659.25, 783.99, 1046.5}, 110*time.Millisecond, 0.35*p.volume))
}

// OnLevelLose plays a falling buzz.
func (p *Player) OnLevelLose() {
	p.play(beep.Seq(
		buzz(220, 180*time.Millisecond, 0.3*p.volume),
		buzz(165, 260*time.Millisecond, 0.3*p.volume),
	))
}

func (p *Player) play(s beep.Streamer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return
	}
	speaker.Lock()
	p.mixer.Add(s)
	speaker.Unlock()
}
