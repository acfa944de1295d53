package service

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

const sweepTimeout = time.Minute

// StreamSweeper runs CleanupOldStreams and InterruptStaleStreams on a cron
// schedule
type StreamSweeper struct {
	cron    *cron.Cron
	streams *StreamRecoveryService
}

// NewStreamSweeper creates a sweeper; schedule accepts standard cron
// expressions and descriptors such as "@every 1h"
func NewStreamSweeper(streams *StreamRecoveryService, schedule string) (*StreamSweeper, error) {
	c := cron.New()
	sw := &StreamSweeper{cron: c, streams: streams}

	if _, err := c.AddFunc(schedule, sw.sweep); err != nil {
		return nil, fmt.Errorf("failed to schedule stream cleanup: %w", err)
	}

	return sw, nil
}

// Start begins running the schedule in the background
func (sw *StreamSweeper) Start() {
	sw.cron.Start()
}

// Stop halts the schedule and waits for a running sweep to finish
func (sw *StreamSweeper) Stop(ctx context.Context) {
	done := sw.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

func (sw *StreamSweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	if _, err := sw.streams.CleanupOldStreams(ctx); err != nil {
		log.Error().Err(err).Msg("Stream cleanup sweep failed")
	}
	if _, err := sw.streams.InterruptStaleStreams(ctx); err != nil {
		log.Error().Err(err).Msg("Orphaned stream sweep failed")
	}
}
