package jobs

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/talkform/talkform-backend/internal/domain"
	"github.com/talkform/talkform-backend/internal/pkg/dbctx"
	"github.com/talkform/talkform-backend/internal/pkg/logger"
	"github.com/talkform/talkform-backend/internal/services"
)

// Reaper closes out conversations stuck in_progress past the staleness
// threshold. It runs on a fixed interval, independent of any request.
type Reaper struct {
	conversations services.ConversationService
	scheduler     *services.SummaryScheduler
	interval      time.Duration
	staleAfter    time.Duration
	log           *logger.Logger
}

func NewReaper(
	conversations services.ConversationService,
	scheduler *services.SummaryScheduler,
	interval time.Duration,
	staleAfter time.Duration,
	log *logger.Logger,
) *Reaper {
	return &Reaper{
		conversations: conversations,
		scheduler:     scheduler,
		interval:      interval,
		staleAfter:    staleAfter,
		log:           log.With("component", "Reaper"),
	}
}

func (r *Reaper) Start(ctx context.Context) {
	r.log.Info("Starting abandonment reaper", "interval", r.interval, "stale_after", r.staleAfter)
	go r.runLoop(ctx)
}

func (r *Reaper) runLoop(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("Reaper loop stopped")
			return
		case <-ticker.C:
			func() {
				defer func() {
					if rec := recover(); rec != nil {
						r.log.Error("Reaper sweep panic", "panic", rec)
					}
				}()
				r.Sweep(ctx)
			}()
		}
	}
}

// Sweep abandons every stale in-progress conversation. Failures are isolated
// per conversation; form-level summary regeneration runs once per distinct
// form even when several of its conversations were reaped together.
func (r *Reaper) Sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-r.staleAfter)
	stale, err := r.conversations.ListStale(ctx, cutoff)
	if err != nil {
		r.log.Warn("Listing stale conversations failed", "error", err)
		return
	}
	if len(stale) == 0 {
		return
	}
	r.log.Info("Reaping stale conversations", "count", len(stale))

	formIDs := make(map[uuid.UUID]struct{})
	for _, conv := range stale {
		if err := r.conversations.Transition(dbctx.Context{Ctx: ctx}, conv.ID, domain.ConversationAbandoned); err != nil {
			// Likely completed or reaped concurrently between list and update.
			r.log.Warn("Abandon transition failed", "conversation_id", conv.ID, "error", err)
			continue
		}
		// Best effort: the abandoned transition is durable regardless of
		// whether the summary succeeds.
		if _, err := r.conversations.GenerateSummary(ctx, conv.ID); err != nil {
			r.log.Warn("Conversation summary failed", "conversation_id", conv.ID, "error", err)
		}
		if conv.FormResponse != nil {
			formIDs[conv.FormResponse.FormID] = struct{}{}
		}
	}

	for formID := range formIDs {
		r.scheduler.EnqueueFormSummary(formID)
	}
}
