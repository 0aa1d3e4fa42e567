package events_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"town-desk/events"
	"town-desk/models"
)

func TestNewBaseEventFillsEnvelope(t *testing.T) {
	base := events.NewBaseEvent(events.ItemIngested, "ingest")
	assert.NotEmpty(t, base.ID)
	assert.Equal(t, events.ItemIngested, base.Type)
	assert.Equal(t, "ingest", base.Source)
	assert.Equal(t, "1", base.Version)
	assert.False(t, base.Timestamp.IsZero())
}

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	itemID := primitive.NewObjectID()
	original := events.ItemIngestedEvent{
		BaseEvent:   events.NewBaseEvent(events.ItemIngested, "ingest"),
		ItemID:      itemID,
		CommunityID: "springfield",
		SourceKind:  models.SourceRSS,
		Title:       "Bridge repair starts Monday",
	}

	data, eventType, err := events.SerializeEvent(original)
	require.NoError(t, err)
	assert.Equal(t, events.ItemIngested, eventType)

	decoded, err := events.DeserializeEvent(eventType, data)
	require.NoError(t, err)
	restored, ok := decoded.(*events.ItemIngestedEvent)
	require.True(t, ok)
	assert.Equal(t, original.ID, restored.ID)
	assert.Equal(t, itemID, restored.ItemID)
	assert.Equal(t, "springfield", restored.CommunityID)
	assert.Equal(t, models.SourceRSS, restored.SourceKind)
}

func TestSerializeTagsEveryEventType(t *testing.T) {
	draftID := primitive.NewObjectID()
	itemID := primitive.NewObjectID()

	cases := []struct {
		event interface{}
		want  events.EventType
	}{
		{events.ItemClassifiedEvent{BaseEvent: events.NewBaseEvent(events.ItemClassified, "worker"), ItemID: itemID, ContentType: "news"}, events.ItemClassified},
		{events.ItemShortlistedEvent{BaseEvent: events.NewBaseEvent(events.ItemShortlisted, "worker"), ItemID: itemID, DraftID: draftID}, events.ItemShortlisted},
		{events.DraftOutlineGeneratedEvent{BaseEvent: events.NewBaseEvent(events.DraftOutlineGenerated, "worker"), DraftID: draftID, ItemID: itemID}, events.DraftOutlineGenerated},
		{events.DraftApprovedForGenerationEvent{BaseEvent: events.NewBaseEvent(events.DraftApprovedForGeneration, "worker"), DraftID: draftID, ItemID: itemID}, events.DraftApprovedForGeneration},
		{events.DraftReadyForPublishingEvent{BaseEvent: events.NewBaseEvent(events.DraftReadyForPublishing, "worker"), DraftID: draftID, ItemID: itemID}, events.DraftReadyForPublishing},
		{events.ItemRoutedEvent{BaseEvent: events.NewBaseEvent(events.ItemRouted, "worker"), ItemID: itemID}, events.ItemRouted},
		{events.ContentModeratedEvent{BaseEvent: events.NewBaseEvent(events.ContentModerated, "worker"), ContentID: draftID, Decision: models.ModerationApproved}, events.ContentModerated},
	}

	for _, tc := range cases {
		data, eventType, err := events.SerializeEvent(tc.event)
		require.NoError(t, err)
		assert.Equal(t, tc.want, eventType)

		decoded, err := events.DeserializeEvent(eventType, data)
		require.NoError(t, err)
		require.NotNil(t, decoded)
	}
}

func TestSerializeRejectsUnknownType(t *testing.T) {
	_, _, err := events.SerializeEvent(struct{}{})
	assert.Error(t, err)
}

func TestDeserializeRejectsUnknownType(t *testing.T) {
	_, err := events.DeserializeEvent("item.vanished", []byte(`{}`))
	assert.Error(t, err)
}
