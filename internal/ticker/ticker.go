package ticker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/stagecall/voicedemo/internal/call"
	"github.com/stagecall/voicedemo/internal/types"
	"github.com/stagecall/voicedemo/internal/websocket"
)

// Ticker broadcasts the elapsed duration of the active call once per second.
// The duration derives from the session's stored start time, so every card on
// every page shows the same value without running its own timer.
type Ticker struct {
	hub      *websocket.Hub
	coord    *call.Coordinator
	interval time.Duration
	logger   zerolog.Logger
}

// NewTicker creates a new Ticker
func NewTicker(hub *websocket.Hub, coord *call.Coordinator, interval time.Duration, logger zerolog.Logger) *Ticker {
	return &Ticker{
		hub:      hub,
		coord:    coord,
		interval: interval,
		logger:   logger,
	}
}

// Start begins broadcasting duration updates
func (t *Ticker) Start(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	t.logger.Info().Dur("interval", t.interval).Msg("duration ticker started")

	for {
		select {
		case <-ctx.Done():
			t.logger.Info().Msg("duration ticker stopped")
			return

		case <-ticker.C:
			snap := t.coord.Status()
			if snap.Status != types.CallStatusActive {
				continue
			}

			message := types.DurationMessage{
				Type:           types.MsgTypeDuration,
				AgentID:        snap.AgentID,
				ElapsedSeconds: t.coord.Elapsed().Seconds(),
			}

			data, err := json.Marshal(message)
			if err != nil {
				t.logger.Error().Err(err).Msg("failed to marshal duration message")
				continue
			}

			t.hub.Broadcast(data)
		}
	}
}
