package audio

import (
	"math"
	"testing"
	"time"

	"github.com/gopxl/beep"
	"github.com/rs/zerolog"

	"memorymatch/internal/game"
)

var _ game.Cue = (*Player)(nil)

// drain reads s to the end and returns the sample count and peak level.
func drain(s beep.Streamer) (int, float64) {
	buf := make([][2]float64, 512)
	total, peak := 0, 0.0
	for {
		n, ok := s.Stream(buf)
		for _, smp := range buf[:n] {
			peak = math.Max(peak, math.Abs(smp[0]))
		}
		total += n
		if !ok {
			return total, peak
		}
	}
}

func TestToneLength(t *testing.T) {
	n, peak := drain(tone(440, 100*time.Millisecond, 0.5))
	if want := sampleRate.N(100 * time.Millisecond); n != want {
		t.Fatalf("expected %d samples, got %d", want, n)
	}
	if peak <= 0 || peak > 0.5 {
		t.Fatalf("peak %v outside (0, 0.5]", peak)
	}
}

func TestArpeggioIsSequential(t *testing.T) {
	n, _ := drain(arpeggio([]float64{440, 550, 660}, 50*time.Millisecond, 0.3))
	if want := 3 * sampleRate.N(50*time.Millisecond); n != want {
		t.Fatalf("expected %d samples, got %d", want, n)
	}
}

func TestBuzzStaysInRange(t *testing.T) {
	_, peak := drain(buzz(110, 200*time.Millisecond, 1))
	if peak > 1 {
		t.Fatalf("buzz clips: peak %v", peak)
	}
}

func TestPlayerSilentUntilInit(t *testing.T) {
	p := NewPlayer(1, zerolog.Nop())
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("cue panicked without audio device: %v", r)
		}
	}()
	p.OnTap()
	p.OnMatch()
	p.OnLevelWin()
	p.OnLevelLose()
	p.Close()
	if p.Enabled() {
		t.Fatal("player should be disabled before Init")
	}
	if p.mixer.Len() != 0 {
		t.Fatalf("expected no queued cues, got %d", p.mixer.Len())
	}
}

func TestPlayerQueuesCuesWhenEnabled(t *testing.T) {
	p := NewPlayer(0.5, zerolog.Nop())
	p.initialized = true // skip the device; the mixer is drained by hand
	p.OnMatch()
	p.OnLevelWin()
	if p.mixer.Len() != 2 {
		t.Fatalf("expected 2 queued cues, got %d", p.mixer.Len())
	}
}

func TestVolumeClamped(t *testing.T) {
	if v := NewPlayer(3, zerolog.Nop()).volume; v != 1 {
		t.Fatalf("expected volume clamped to 1, got %v", v)
	}
	if v := NewPlayer(-1, zerolog.Nop()).volume; v != 0 {
		t.Fatalf("expected volume clamped to 0, got %v", v)
	}
}
