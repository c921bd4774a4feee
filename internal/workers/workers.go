package workers

import (
	"time"

	"github.com/rs/zerolog/log"
	"mosaic/internal/engine/webhooks"
	"mosaic/internal/platform/repositories"
)

// FailStuckEvents moves events stuck in processing past maxAge to failed,
// so a crashed worker never leaves an event in processing forever.
func FailStuckEvents(events *repositories.EventRepository, maxAge time.Duration) {
	n, err := events.FailStuck(maxAge)
	if err != nil {
		log.Error().Err(err).Msg("failed to sweep stuck events")
		return
	}
	if n > 0 {
		log.Warn().Int64("count", n).Msg("abandoned stuck events marked failed")
	}
}

// RequeueStalePending re-enqueues pending events that were dropped when
// the processing queue was full.
func RequeueStalePending(events *repositories.EventRepository, processor *webhooks.Processor, minAge time.Duration, batch int) {
	refs, err := events.ListStalePending(minAge, batch)
	if err != nil {
		log.Error().Err(err).Msg("failed to list stale pending events")
		return
	}

	requeued := 0
	for _, ref := range refs {
		if processor.Enqueue(ref.TenantID, ref.EventID) {
			requeued++
		}
	}
	if requeued > 0 {
		log.Info().Int("count", requeued).Msg("stale pending events re-enqueued")
	}
}
