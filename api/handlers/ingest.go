package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"town-desk/eventbus"
	"town-desk/events"
	"town-desk/normalizer"
)

// EmailIngestInput is the body of an inbound email webhook call.
type EmailIngestInput struct {
	CommunityID string    `json:"community_id" binding:"required"`
	Mailbox     string    `json:"mailbox"`
	From        string    `json:"from"`
	Subject     string    `json:"subject"`
	ReceivedAt  time.Time `json:"received_at"`
	BodyText    string    `json:"body_text"`
	BodyHTML    string    `json:"body_html"`
}

// WireIngestInput is the body of a wire-service webhook call.
type WireIngestInput struct {
	CommunityID     string    `json:"community_id" binding:"required"`
	ServiceProvider string    `json:"service_provider"`
	Headline        string    `json:"headline"`
	Body            string    `json:"body"`
	Dateline        string    `json:"dateline"`
	ReleaseDate     time.Time `json:"release_date"`
}

// IngestEmailHandler godoc
// @Summary      Ingest an inbound email
// @Description  Webhook for the ingestion mailbox forwarder
// @Tags         ingest
// @Accept       json
// @Param        input  body  EmailIngestInput  true  "Email payload"
// @Produce      json
// @Success      201  {object}  map[string]any
// @Router       /ingest/email [post]
func IngestEmailHandler(norm *normalizer.Normalizer, bus eventbus.EventBus, maxRetries int) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in EmailIngestInput
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		result, err := norm.IngestEmail(c.Request.Context(), in.CommunityID, normalizer.InboundEmail{
			Mailbox:    in.Mailbox,
			From:       in.From,
			Subject:    in.Subject,
			ReceivedAt: in.ReceivedAt,
			BodyText:   in.BodyText,
			BodyHTML:   in.BodyHTML,
		})
		respondIngest(c, bus, maxRetries, result, err)
	}
}

// IngestWireHandler godoc
// @Summary      Ingest a wire-service item
// @Tags         ingest
// @Accept       json
// @Param        input  body  WireIngestInput  true  "Wire payload"
// @Produce      json
// @Success      201  {object}  map[string]any
// @Router       /ingest/wire [post]
func IngestWireHandler(norm *normalizer.Normalizer, bus eventbus.EventBus, maxRetries int) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in WireIngestInput
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		result, err := norm.IngestWire(c.Request.Context(), in.CommunityID, normalizer.WireItem{
			ServiceProvider: in.ServiceProvider,
			Headline:        in.Headline,
			Body:            in.Body,
			Dateline:        in.Dateline,
			ReleaseDate:     in.ReleaseDate,
		})
		respondIngest(c, bus, maxRetries, result, err)
	}
}

// respondIngest queues the classification event for fresh items and maps the
// dedup outcome to the response. Duplicates return 200 with the existing id.
func respondIngest(c *gin.Context, bus eventbus.EventBus, maxRetries int, result *normalizer.IngestResult, err error) {
	if errors.Is(err, normalizer.ErrValidation) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if result.Duplicate {
		c.JSON(http.StatusOK, gin.H{"item_id": result.Item.ID.Hex(), "duplicate": true})
		return
	}

	event := events.ItemIngestedEvent{
		BaseEvent:   events.NewBaseEvent(events.ItemIngested, "api"),
		ItemID:      result.Item.ID,
		CommunityID: result.Item.CommunityID,
		SourceKind:  result.Item.Source.Kind,
		Title:       result.Item.Title,
	}
	evt, err := eventbus.NewJSONEvent("", event, maxRetries)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := bus.Publish(c.Request.Context(), eventbus.TopicClassify.Base(), evt); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"item_id": result.Item.ID.Hex(), "duplicate": false})
}
