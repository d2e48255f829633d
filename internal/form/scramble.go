package form

import (
	"context"
	"math/rand"
	"time"

	"github.com/bobarin/xvoice/internal/models"
)

const (
	LabelIdle      = "Analyze"
	LabelExecuting = "Analyzing..."

	// ReplayPause is the gap between looped animation runs.
	ReplayPause = time.Second

	defaultTick  = 3
	defaultSpeed = 0.6
	baseFPS      = 60

	glyphLow  = 65
	glyphHigh = 125
)

// Scrambler renders a text-scramble reveal: characters settle left to right
// while unsettled positions cycle through random glyphs.
type Scrambler struct {
	Text  string
	Tick  int     // frames between reveal steps
	Speed float64 // fraction of baseFPS, 0 < Speed <= 1
	Loop  bool
	Seed  int64
}

// NewScrambler returns a scrambler with the default tick and speed.
func NewScrambler(text string, loop bool) *Scrambler {
	return &Scrambler{
		Text:  text,
		Tick:  defaultTick,
		Speed: defaultSpeed,
		Loop:  loop,
		Seed:  1,
	}
}

// LabelFor picks the button label animation for a submission status.
func LabelFor(status models.SubmissionStatus) *Scrambler {
	if status == models.SubmissionStatusExecuting {
		return NewScrambler(LabelExecuting, true)
	}
	return NewScrambler(LabelIdle, false)
}

// FrameInterval is the time between rendered frames.
func (s *Scrambler) FrameInterval() time.Duration {
	speed := s.Speed
	if speed <= 0 || speed > 1 {
		speed = defaultSpeed
	}
	return time.Duration(float64(time.Second) / (baseFPS * speed))
}

// Frames is the number of frames one full reveal takes.
func (s *Scrambler) Frames() int {
	return len([]rune(s.Text)) * s.tick()
}

// Duration is the length of one reveal run.
func (s *Scrambler) Duration() time.Duration {
	return time.Duration(s.Frames()) * s.FrameInterval()
}

// Frame renders frame n of a run. Frames at or past Frames() are the settled
// text.
func (s *Scrambler) Frame(n int) string {
	runes := []rune(s.Text)
	revealed := n / s.tick()
	if revealed >= len(runes) {
		return s.Text
	}

	rng := rand.New(rand.NewSource(s.Seed + int64(n)))
	out := make([]rune, len(runes))
	for i, r := range runes {
		if i < revealed || r == ' ' {
			out[i] = r
			continue
		}
		out[i] = rune(glyphLow + rng.Intn(glyphHigh-glyphLow+1))
	}
	return string(out)
}

// FrameAt renders the frame visible elapsed after the animation started,
// accounting for the replay pause when looping.
func (s *Scrambler) FrameAt(elapsed time.Duration) string {
	if elapsed < 0 {
		elapsed = 0
	}
	run := s.Duration()
	if s.Loop {
		elapsed %= run + ReplayPause
	}
	if elapsed >= run {
		return s.Text
	}
	return s.Frame(int(elapsed / s.FrameInterval()))
}

// Play emits frames to onFrame on a ticker. Without Loop it returns after the
// settled text is emitted; with Loop it waits ReplayPause and replays until
// ctx is done.
func (s *Scrambler) Play(ctx context.Context, onFrame func(string)) error {
	ticker := time.NewTicker(s.FrameInterval())
	defer ticker.Stop()

	for {
		for n := 0; n <= s.Frames(); n++ {
			onFrame(s.Frame(n))
			if n == s.Frames() {
				break
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}

		if !s.Loop {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(ReplayPause):
		}
		ticker.Reset(s.FrameInterval())
	}
}

func (s *Scrambler) tick() int {
	if s.Tick < 1 {
		return 1
	}
	return s.Tick
}
