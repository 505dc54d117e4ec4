// Package transcript replays a static transcript in lockstep with audio
// playback position. It has no connection to the live call path; it only
// drives the reveal cursor of pre-recorded demo playback widgets.
package transcript

import (
	"math"
	"sync"
)

// Cursor derives how much of a transcript is visible from the audio position.
// The visible text is always a prefix of the full text; it grows while the
// audio plays forward and jumps on seeks.
type Cursor struct {
	mu            sync.Mutex
	fullText      string
	runes         []rune
	totalDuration float64
	elapsed       float64
	ended         bool
}

// NewCursor creates a cursor for one transcript/audio pairing
func NewCursor(fullText string, totalDurationSeconds float64) *Cursor {
	c := &Cursor{}
	c.Reset(fullText, totalDurationSeconds)
	return c
}

// Reset re-initializes the cursor for a new transcript/audio source. Must be
// called whenever the widget switches to a different agent's demo, even when
// the widget instance itself is reused.
func (c *Cursor) Reset(fullText string, totalDurationSeconds float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fullText = fullText
	c.runes = []rune(fullText)
	c.totalDuration = totalDurationSeconds
	c.elapsed = 0
	c.ended = false
}

// OnTimeUpdate advances the cursor to the audio's reported position and
// returns the visible text
func (c *Cursor) OnTimeUpdate(currentSeconds float64) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.elapsed = currentSeconds
	return c.visibleLocked()
}

// OnSeek repositions the cursor. Unlike timeupdate the position may move
// backwards; the visible text shrinks accordingly.
func (c *Cursor) OnSeek(newSeconds float64) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.elapsed = newSeconds
	c.ended = false
	return c.visibleLocked()
}

// OnEnded forces the full transcript visible regardless of the last reported
// position
func (c *Cursor) OnEnded() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ended = true
	return c.fullText
}

// VisibleText returns the currently revealed prefix
func (c *Cursor) VisibleText() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.visibleLocked()
}

// FullText returns the complete transcript
func (c *Cursor) FullText() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fullText
}

func (c *Cursor) visibleLocked() string {
	if c.ended {
		return c.fullText
	}
	// Unknown or zero duration means 0% elapsed, never a division error
	if c.totalDuration <= 0 {
		return ""
	}

	fraction := c.elapsed / c.totalDuration
	if fraction <= 0 {
		return ""
	}
	if fraction >= 1 {
		return c.fullText
	}

	n := int(math.Floor(fraction * float64(len(c.runes))))
	if n > len(c.runes) {
		n = len(c.runes)
	}
	return string(c.runes[:n])
}
