package command

import (
	"context"
	"fmt"
	"log"

	"github.com/sentencevault/sentence-service/shared/events"
	"github.com/sentencevault/sentence-service/shared/models"
)

type UsageRecorder interface {
	MarkEventProcessed(ctx context.Context, eventID string) (bool, error)
	UnmarkEventProcessed(ctx context.Context, eventID string)
	Record(ctx context.Context, delta models.UsageView) error
}

// UsageCommandService folds account events into the usage projection.
type UsageCommandService struct {
	usage UsageRecorder
}

func NewUsageCommandService(usage UsageRecorder) *UsageCommandService {
	return &UsageCommandService{usage: usage}
}

// HandleAccountEvent is the stream handler for account.events. Each event ID
// is applied at most once; redeliveries are acknowledged without effect.
func (s *UsageCommandService) HandleAccountEvent(ctx context.Context, event events.Event) error {
	delta, ok := usageDelta(event.Type)
	if !ok {
		log.Printf("Ignoring event type %s", event.Type)
		return nil
	}
	if event.ID == "" {
		return fmt.Errorf("event %s has no id", event.Type)
	}

	claimed, err := s.usage.MarkEventProcessed(ctx, event.ID)
	if err != nil {
		return err
	}
	if !claimed {
		log.Printf("Event %s already processed, skipping duplicate", event.ID)
		return nil
	}

	if err := s.usage.Record(ctx, delta); err != nil {
		// Release the claim so the pending entry is applied on redelivery.
		s.usage.UnmarkEventProcessed(ctx, event.ID)
		return err
	}
	return nil
}

func usageDelta(eventType string) (models.UsageView, bool) {
	switch eventType {
	case events.AccountRegistered:
		return models.UsageView{Registrations: 1}, true
	case events.SentenceStored:
		return models.UsageView{SentencesStored: 1, TokensSpent: 1}, true
	case events.SentenceRetrieved:
		return models.UsageView{SentencesRetrieved: 1, TokensSpent: 1}, true
	default:
		return models.UsageView{}, false
	}
}
