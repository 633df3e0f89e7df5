package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/longregen/counsel/internal/adapters/metrics"
	"github.com/longregen/counsel/internal/domain"
	"github.com/longregen/counsel/internal/domain/models"
	"github.com/longregen/counsel/internal/ports"
)

const (
	DefaultAbandonAfter  = 72 * time.Hour
	DefaultSweepInterval = 15 * time.Minute
	sweepBatchSize       = 100
)

var sweepableStatuses = []models.ConversationStatus{
	models.ConversationStatusOpen,
	models.ConversationStatusActive,
}

// AbandonSweeper abandons open and active conversations that went quiet.
type AbandonSweeper struct {
	convRepo      ports.ConversationRepository
	conversations *ConversationService
	idleAfter     time.Duration
	interval      time.Duration
	now           func() time.Time
}

func NewAbandonSweeper(convRepo ports.ConversationRepository, conversations *ConversationService, idleAfter, interval time.Duration) *AbandonSweeper {
	if idleAfter <= 0 {
		idleAfter = DefaultAbandonAfter
	}
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &AbandonSweeper{
		convRepo:      convRepo,
		conversations: conversations,
		idleAfter:     idleAfter,
		interval:      interval,
		now:           time.Now,
	}
}

// Run sweeps on every tick until ctx is cancelled.
func (s *AbandonSweeper) Run(ctx context.Context) {
	log.Info().Dur("idle_after", s.idleAfter).Dur("interval", s.interval).Msg("abandon sweeper started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("abandon sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				log.Warn().Err(err).Msg("abandon sweep failed")
			}
		}
	}
}

// Sweep abandons one batch of idle conversations and returns how many moved.
func (s *AbandonSweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := s.now().UTC().Add(-s.idleAfter)
	idle, err := s.convRepo.ListIdleSince(ctx, sweepableStatuses, cutoff, sweepBatchSize)
	if err != nil {
		return 0, err
	}

	abandoned := 0
	for _, conv := range idle {
		_, err := s.conversations.Transition(ctx, conv.ID, models.ConversationStatusAbandoned, "idle", nil)
		switch {
		case err == nil:
			abandoned++
			metrics.ConversationsAbandonedTotal.Inc()
		case errors.Is(err, domain.ErrStaleConversation):
			log.Debug().Str("conversation_id", conv.ID).Msg("conversation moved before sweep, skipping")
		default:
			log.Warn().Err(err).Str("conversation_id", conv.ID).Msg("failed to abandon idle conversation")
		}
	}

	if abandoned > 0 {
		log.Info().Int("count", abandoned).Time("cutoff", cutoff).Msg("abandoned idle conversations")
	}
	return abandoned, nil
}
