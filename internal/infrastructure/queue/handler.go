package queue

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/waldorf/school-records/internal/core/domain"
)

// LogCandidateHandler reports deletion candidates without acting on them.
// Removal stays an explicit purge by an operator.
type LogCandidateHandler struct {
	log zerolog.Logger
}

func NewLogCandidateHandler(log zerolog.Logger) *LogCandidateHandler {
	return &LogCandidateHandler{log: log}
}

func (h *LogCandidateHandler) HandleDeletionCandidate(_ context.Context, p *domain.Person) error {
	ev := h.log.Warn().
		Str("person_id", p.ID).
		Str("type", string(p.Type)).
		Str("classification", string(p.Consent.Classification))
	if d := p.Consent.ScheduledDeletionDate; d != nil {
		ev = ev.Time("scheduled_deletion_date", *d)
	}
	ev.Msg("person is due for deletion")
	return nil
}
