package mic

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// ErrDenied is returned when microphone access is refused or unavailable
var ErrDenied = errors.New("microphone access denied")

// Gate checks microphone permission before a call attempt. The check is
// repeated on every attempt because permission can be revoked between calls.
type Gate interface {
	RequestAccess(ctx context.Context) error
}

// Probe acquires the audio input device and returns a release function. The
// acquisition exists only to trigger and verify permission; the stream is
// released immediately and never retained.
type Probe func(ctx context.Context) (release func(), err error)

// ProbeGate implements Gate by briefly acquiring the capture device
type ProbeGate struct {
	probe  Probe
	logger zerolog.Logger
}

// NewProbeGate creates a ProbeGate around the given capture probe
func NewProbeGate(probe Probe, logger zerolog.Logger) *ProbeGate {
	return &ProbeGate{
		probe:  probe,
		logger: logger.With().Str("component", "mic_gate").Logger(),
	}
}

// RequestAccess runs the probe and releases the device immediately. Any probe
// failure maps to ErrDenied; the coordinator never connects after a denial.
func (g *ProbeGate) RequestAccess(ctx context.Context) error {
	release, err := g.probe(ctx)
	if err != nil {
		g.logger.Warn().Err(err).Msg("microphone permission refused")
		return fmt.Errorf("%w: %v", ErrDenied, err)
	}
	if release != nil {
		release()
	}
	g.logger.Debug().Msg("microphone permission granted")
	return nil
}

// GrantAll returns a probe that always grants. Used for deployments where the
// capture device is managed outside this process.
func GrantAll() Probe {
	return func(ctx context.Context) (func(), error) {
		return func() {}, nil
	}
}

// DenyAll returns a probe that always refuses with the given reason
func DenyAll(reason string) Probe {
	return func(ctx context.Context) (func(), error) {
		return nil, errors.New(reason)
	}
}
