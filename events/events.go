package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"town-desk/models"
)

// EventType names one pipeline phase transition.
type EventType string

const (
	ItemIngested               EventType = "item.ingested"
	ItemClassified             EventType = "item.classified"
	ItemShortlisted            EventType = "item.shortlisted"
	DraftOutlineGenerated      EventType = "draft.outline_generated"
	DraftApprovedForGeneration EventType = "draft.approved_for_generation"
	DraftReadyForPublishing    EventType = "draft.ready_for_publishing"
	ItemRouted                 EventType = "item.routed"
	ContentModerated           EventType = "content.moderated"
)

// BaseEvent is the common envelope of all pipeline events.
type BaseEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"` // "ingest", "worker", "api"
	Version   string    `json:"version"`
}

// GetType returns the event type.
func (e BaseEvent) GetType() EventType {
	return e.Type
}

// NewBaseEvent fills the envelope for a freshly produced event.
func NewBaseEvent(eventType EventType, source string) BaseEvent {
	return BaseEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now(),
		Source:    source,
		Version:   "1",
	}
}

// ItemIngestedEvent is published once the normalizer stored a new raw item.
// Consumed by the classification phase.
type ItemIngestedEvent struct {
	BaseEvent
	ItemID      primitive.ObjectID `json:"item_id"`
	CommunityID string             `json:"community_id"`
	SourceKind  models.SourceKind  `json:"source_kind"`
	Title       string             `json:"title"`
}

// ItemClassifiedEvent is published after successful classification.
// Consumed by the scoring phase.
type ItemClassifiedEvent struct {
	BaseEvent
	ItemID      primitive.ObjectID `json:"item_id"`
	CommunityID string             `json:"community_id"`
	ContentType string             `json:"content_type"`
	HasEvent    bool               `json:"has_event"`
}

// ItemShortlistedEvent is published when a scored item won a draft slot.
// Consumed by the draft generation phase.
type ItemShortlistedEvent struct {
	BaseEvent
	ItemID         primitive.ObjectID `json:"item_id"`
	DraftID        primitive.ObjectID `json:"draft_id"`
	CommunityID    string             `json:"community_id"`
	LocalRelevance int                `json:"local_relevance"`
	NewsValue      int                `json:"news_value"`
}

// DraftOutlineGeneratedEvent is published once a draft has an outline.
// Consumed by the fact-check phase.
type DraftOutlineGeneratedEvent struct {
	BaseEvent
	DraftID     primitive.ObjectID `json:"draft_id"`
	ItemID      primitive.ObjectID `json:"item_id"`
	CommunityID string             `json:"community_id"`
}

// DraftApprovedForGenerationEvent is published when the fact-check gate
// cleared a draft for article generation. Consumed by the draft phase.
type DraftApprovedForGenerationEvent struct {
	BaseEvent
	DraftID     primitive.ObjectID `json:"draft_id"`
	ItemID      primitive.ObjectID `json:"item_id"`
	CommunityID string             `json:"community_id"`
}

// DraftReadyForPublishingEvent is published when a draft passed the quality
// gate. Consumed by the routing phase.
type DraftReadyForPublishingEvent struct {
	BaseEvent
	DraftID     primitive.ObjectID `json:"draft_id"`
	ItemID      primitive.ObjectID `json:"item_id"`
	CommunityID string             `json:"community_id"`
}

// ItemRoutedEvent is published after routing for observability consumers.
type ItemRoutedEvent struct {
	BaseEvent
	ItemID  primitive.ObjectID    `json:"item_id"`
	Outputs []models.RoutedOutput `json:"outputs"`
}

// ContentModeratedEvent is published after a moderation decision.
type ContentModeratedEvent struct {
	BaseEvent
	ContentKind models.ContentKind        `json:"content_kind"`
	ContentID   primitive.ObjectID        `json:"content_id"`
	Decision    models.ModerationDecision `json:"decision"`
}

// SerializeEvent marshals an event and returns its type tag.
func SerializeEvent(event interface{}) ([]byte, EventType, error) {
	var eventType EventType

	switch e := event.(type) {
	case ItemIngestedEvent:
		eventType = e.Type
	case ItemClassifiedEvent:
		eventType = e.Type
	case ItemShortlistedEvent:
		eventType = e.Type
	case DraftOutlineGeneratedEvent:
		eventType = e.Type
	case DraftApprovedForGenerationEvent:
		eventType = e.Type
	case DraftReadyForPublishingEvent:
		eventType = e.Type
	case ItemRoutedEvent:
		eventType = e.Type
	case ContentModeratedEvent:
		eventType = e.Type
	default:
		return nil, "", fmt.Errorf("unknown event type: %T", event)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal event: %w", err)
	}

	return data, eventType, nil
}

// DeserializeEvent unmarshals data into the struct matching eventType.
func DeserializeEvent(eventType EventType, data []byte) (interface{}, error) {
	var event interface{}

	switch eventType {
	case ItemIngested:
		event = &ItemIngestedEvent{}
	case ItemClassified:
		event = &ItemClassifiedEvent{}
	case ItemShortlisted:
		event = &ItemShortlistedEvent{}
	case DraftOutlineGenerated:
		event = &DraftOutlineGeneratedEvent{}
	case DraftApprovedForGeneration:
		event = &DraftApprovedForGenerationEvent{}
	case DraftReadyForPublishing:
		event = &DraftReadyForPublishingEvent{}
	case ItemRouted:
		event = &ItemRoutedEvent{}
	case ContentModerated:
		event = &ContentModeratedEvent{}
	default:
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}

	if err := json.Unmarshal(data, event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	return event, nil
}
