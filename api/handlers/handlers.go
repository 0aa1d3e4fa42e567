package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"town-desk/drafts"
	"town-desk/dto"
	"town-desk/eventbus"
	"town-desk/events"
	"town-desk/models"
	"town-desk/repositories"
	"town-desk/threads"
)

// ListRunsHandler godoc
// @Summary      List workflow runs
// @Description  Recent phase batches, newest first
// @Tags         runs
// @Param        phase  query  string  false  "Filter by pipeline phase"
// @Param        limit  query  int     false  "Max rows (default 20)"
// @Produce      json
// @Success      200  {array}  dto.WorkflowRunDTO
// @Router       /runs [get]
func ListRunsHandler(runs *repositories.WorkflowRunRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
		phase := models.PipelinePhase(c.Query("phase"))
		rows, err := runs.ListRecent(c.Request.Context(), phase, int64(limit))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		out := make([]dto.WorkflowRunDTO, 0, len(rows))
		for _, r := range rows {
			out = append(out, dto.NewWorkflowRunDTO(r))
		}
		c.JSON(http.StatusOK, out)
	}
}

// ListReviewDraftsHandler godoc
// @Summary      List drafts held for review
// @Description  Drafts parked by the fact-check or moderation gate
// @Tags         review
// @Param        limit  query  int  false  "Max rows (default 50)"
// @Produce      json
// @Success      200  {array}  dto.DraftReviewDTO
// @Router       /review/drafts [get]
func ListReviewDraftsHandler(draftRepo *repositories.DraftRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		rows, err := draftRepo.ListHeldForReview(c.Request.Context(), int64(limit))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		out := make([]dto.DraftReviewDTO, 0, len(rows))
		for _, d := range rows {
			out = append(out, dto.NewDraftReviewDTO(d))
		}
		c.JSON(http.StatusOK, out)
	}
}

// ListDraftsByStatusHandler godoc
// @Summary      List drafts by status
// @Tags         drafts
// @Param        status  query  string  true   "Draft status"
// @Param        limit   query  int     false  "Max rows (default 50)"
// @Produce      json
// @Success      200  {array}  dto.DraftReviewDTO
// @Router       /drafts [get]
func ListDraftsByStatusHandler(draftRepo *repositories.DraftRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := models.DraftStatus(c.Query("status"))
		if status == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "status is required"})
			return
		}
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		rows, err := draftRepo.ListByStatus(c.Request.Context(), status, int64(limit))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		out := make([]dto.DraftReviewDTO, 0, len(rows))
		for _, d := range rows {
			out = append(out, dto.NewDraftReviewDTO(d))
		}
		c.JSON(http.StatusOK, out)
	}
}

// ApproveDraftHandler godoc
// @Summary      Approve a held draft
// @Description  Manual fact review: release the hold and schedule generation
// @Tags         review
// @Param        id  path  string  true  "Draft ObjectID"
// @Produce      json
// @Success      200  {object}  dto.DraftReviewDTO
// @Router       /review/drafts/{id}/approve [post]
func ApproveDraftHandler(draftRepo *repositories.DraftRepository, bus eventbus.EventBus) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
			return
		}
		entry := models.TransitionLogEntry{
			From: models.DraftOutlineGenerated,
			To:   models.DraftReadyForGeneration,
			Note: "manual fact review approval",
			At:   time.Now(),
		}
		err = draftRepo.Transition(c.Request.Context(), id, models.DraftOutlineGenerated, models.DraftReadyForGeneration,
			entry, map[string]any{"held_for_review": false})
		if errors.Is(err, drafts.ErrStatusConflict) {
			c.JSON(http.StatusConflict, gin.H{"error": "draft is not awaiting fact review"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		draft, err := draftRepo.FindByID(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		evt := events.DraftApprovedForGenerationEvent{
			BaseEvent:   events.NewBaseEvent(events.DraftApprovedForGeneration, "api"),
			DraftID:     draft.ID,
			ItemID:      draft.RawItemID,
			CommunityID: draft.CommunityID,
		}
		msg, err := eventbus.NewJSONEvent("", evt, 3)
		if err == nil {
			err = bus.Publish(c.Request.Context(), eventbus.TopicDraft.Base(), msg)
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, dto.NewDraftReviewDTO(*draft))
	}
}

// RejectDraftHandler godoc
// @Summary      Reject a held draft
// @Tags         review
// @Param        id      path  string                true  "Draft ObjectID"
// @Param        reason  body  handlers.RejectInput  true  "Rejection reason"
// @Accept       json
// @Produce      json
// @Success      200  {object}  dto.DraftReviewDTO
// @Router       /review/drafts/{id}/reject [post]
func RejectDraftHandler(orchestrator *drafts.Orchestrator, draftRepo *repositories.DraftRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
			return
		}
		var in RejectInput
		if err := c.ShouldBindJSON(&in); err != nil || in.Reason == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "reason is required"})
			return
		}
		draft, err := draftRepo.FindByID(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		if err := orchestrator.Reject(c.Request.Context(), draft, in.Reason); err != nil {
			if errors.Is(err, drafts.ErrDraftTerminal) {
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		updated, err := draftRepo.FindByID(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, dto.NewDraftReviewDTO(*updated))
	}
}

// RejectInput is the body of a manual draft rejection.
type RejectInput struct {
	Reason string `json:"reason"`
}

// ListThreadsHandler godoc
// @Summary      List story threads
// @Tags         threads
// @Param        community_id  query  string  true   "Community id"
// @Param        limit         query  int     false  "Max rows (default 50)"
// @Produce      json
// @Success      200  {array}  dto.ThreadDTO
// @Router       /threads [get]
func ListThreadsHandler(threadRepo *repositories.StoryThreadRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		communityID := c.Query("community_id")
		if communityID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "community_id is required"})
			return
		}
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		rows, err := threadRepo.ListByCommunity(c.Request.Context(), communityID, int64(limit))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		out := make([]dto.ThreadDTO, 0, len(rows))
		for _, t := range rows {
			out = append(out, dto.NewThreadDTO(t))
		}
		c.JSON(http.StatusOK, out)
	}
}

// GetThreadHandler godoc
// @Summary      Get thread detail
// @Description  Thread with its linked articles and follow-up triggers
// @Tags         threads
// @Param        id  path  string  true  "Thread ObjectID"
// @Produce      json
// @Success      200  {object}  dto.ThreadDetailDTO
// @Router       /threads/{id} [get]
func GetThreadHandler(threadRepo *repositories.StoryThreadRepository, linkRepo *repositories.StoryThreadArticleRepository, triggerRepo *repositories.FollowUpTriggerRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
			return
		}
		thread, err := threadRepo.FindByID(c.Request.Context(), id)
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		links, err := linkRepo.ListByThread(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		triggers, err := triggerRepo.ListByThread(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, dto.NewThreadDetailDTO(*thread, links, triggers))
	}
}

// ResolveThreadHandler godoc
// @Summary      Resolve a thread
// @Description  Records the resolution and cancels pending triggers
// @Tags         threads
// @Param        id    path  string                 true  "Thread ObjectID"
// @Param        body  body  handlers.ResolveInput  true  "Resolution"
// @Accept       json
// @Produce      json
// @Success      204
// @Router       /threads/{id}/resolve [post]
func ResolveThreadHandler(manager *threads.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
			return
		}
		var in ResolveInput
		if err := c.ShouldBindJSON(&in); err != nil || in.Type == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "type is required"})
			return
		}
		if err := manager.Resolve(c.Request.Context(), id, in.Type, in.Summary); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// ResolveInput is the body of a manual thread resolution.
type ResolveInput struct {
	Type    string `json:"type"`
	Summary string `json:"summary"`
}

// ModerationHistoryHandler godoc
// @Summary      Moderation history for one piece of content
// @Tags         moderation
// @Param        kind  path  string  true  "Content kind"
// @Param        id    path  string  true  "Content ObjectID"
// @Produce      json
// @Success      200  {array}  dto.ModerationLogDTO
// @Router       /moderation/{kind}/{id} [get]
func ModerationHistoryHandler(logRepo *repositories.ModerationLogRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
			return
		}
		rows, err := logRepo.ListFor(c.Request.Context(), models.ContentKind(c.Param("kind")), id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		out := make([]dto.ModerationLogDTO, 0, len(rows))
		for _, l := range rows {
			out = append(out, dto.NewModerationLogDTO(l))
		}
		c.JSON(http.StatusOK, out)
	}
}
