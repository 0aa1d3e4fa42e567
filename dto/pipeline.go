package dto

import (
	"time"

	"town-desk/models"
)

// DraftReviewDTO is the review-queue row for drafts held on a failed
// fact-check gate. Internal transition history is not exposed.
type DraftReviewDTO struct {
	ID                  string    `json:"id"`
	RawItemID           string    `json:"raw_item_id"`
	CommunityID         string    `json:"community_id"`
	Status              string    `json:"status"`
	Outline             string    `json:"outline,omitempty"`
	Title               string    `json:"title,omitempty"`
	RelevanceScore      *int      `json:"relevance_score,omitempty"`
	FactCheckConfidence *int      `json:"fact_check_confidence,omitempty"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func NewDraftReviewDTO(d models.NewsArticleDraft) DraftReviewDTO {
	return DraftReviewDTO{
		ID:                  d.ID.Hex(),
		RawItemID:           d.RawItemID.Hex(),
		CommunityID:         d.CommunityID,
		Status:              string(d.Status),
		Outline:             d.Outline,
		Title:               d.Title,
		RelevanceScore:      d.RelevanceScore,
		FactCheckConfidence: d.FactCheckConfidence,
		UpdatedAt:           d.UpdatedAt,
	}
}

// ThreadDTO is the thread list row.
type ThreadDTO struct {
	ID                string    `json:"id"`
	CommunityID       string    `json:"community_id"`
	Title             string    `json:"title"`
	Status            string    `json:"status"`
	Priority          int       `json:"priority"`
	LastDevelopmentAt time.Time `json:"last_development_at"`
}

func NewThreadDTO(t models.StoryThread) ThreadDTO {
	return ThreadDTO{
		ID:                t.ID.Hex(),
		CommunityID:       t.CommunityID,
		Title:             t.Title,
		Status:            string(t.Status),
		Priority:          t.Priority,
		LastDevelopmentAt: t.LastDevelopmentAt,
	}
}

// ThreadArticleDTO is one link row inside a thread detail.
type ThreadArticleDTO struct {
	ArticleID      string `json:"article_id"`
	NarrativeRole  string `json:"narrative_role"`
	SequenceNumber int    `json:"sequence_number"`
}

// TriggerDTO is one follow-up trigger inside a thread detail.
type TriggerDTO struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Status      string    `json:"status"`
	CheckCount  int       `json:"check_count"`
	MaxChecks   int       `json:"max_checks"`
	NextCheckAt time.Time `json:"next_check_at"`
}

// ThreadDetailDTO is the full thread view.
type ThreadDetailDTO struct {
	ThreadDTO
	KeyEntities models.EntitySet   `json:"key_entities"`
	Engagement  int64              `json:"engagement_total"`
	Resolution  *models.Resolution `json:"resolution,omitempty"`
	Articles    []ThreadArticleDTO `json:"articles"`
	Triggers    []TriggerDTO       `json:"triggers"`
}

func NewThreadDetailDTO(t models.StoryThread, links []models.StoryThreadArticle, triggers []models.FollowUpTrigger) ThreadDetailDTO {
	detail := ThreadDetailDTO{
		ThreadDTO:   NewThreadDTO(t),
		KeyEntities: t.KeyEntities,
		Engagement:  t.Engagement.Total(),
		Resolution:  t.Resolution,
		Articles:    make([]ThreadArticleDTO, 0, len(links)),
		Triggers:    make([]TriggerDTO, 0, len(triggers)),
	}
	for _, l := range links {
		detail.Articles = append(detail.Articles, ThreadArticleDTO{
			ArticleID:      l.ArticleID.Hex(),
			NarrativeRole:  string(l.NarrativeRole),
			SequenceNumber: l.SequenceNumber,
		})
	}
	for _, tr := range triggers {
		detail.Triggers = append(detail.Triggers, TriggerDTO{
			ID:          tr.ID.Hex(),
			Type:        string(tr.Type),
			Status:      string(tr.Status),
			CheckCount:  tr.CheckCount,
			MaxChecks:   tr.MaxChecks,
			NextCheckAt: tr.NextCheckAt,
		})
	}
	return detail
}

// WorkflowRunDTO is one phase batch row for the dashboard.
type WorkflowRunDTO struct {
	RunID          string     `json:"run_id"`
	Phase          string     `json:"phase"`
	Status         string     `json:"status"`
	ItemsProcessed int        `json:"items_processed"`
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
}

func NewWorkflowRunDTO(r models.WorkflowRun) WorkflowRunDTO {
	return WorkflowRunDTO{
		RunID:          r.RunID,
		Phase:          string(r.Phase),
		Status:         string(r.Status),
		ItemsProcessed: r.ItemsProcessed,
		StartedAt:      r.StartedAt,
		CompletedAt:    r.CompletedAt,
		ErrorMessage:   r.ErrorMessage,
	}
}

// ModerationLogDTO is one audit row of the decision history.
type ModerationLogDTO struct {
	ID               string    `json:"id"`
	Decision         string    `json:"decision"`
	ViolationSection string    `json:"violation_section,omitempty"`
	Explanation      string    `json:"explanation,omitempty"`
	Confidence       int       `json:"confidence"`
	Supersedes       string    `json:"supersedes,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

func NewModerationLogDTO(l models.ContentModerationLog) ModerationLogDTO {
	d := ModerationLogDTO{
		ID:               l.ID.Hex(),
		Decision:         string(l.Decision),
		ViolationSection: l.ViolationSection,
		Explanation:      l.Explanation,
		Confidence:       l.Confidence,
		CreatedAt:        l.CreatedAt,
	}
	if l.Supersedes != nil {
		d.Supersedes = l.Supersedes.Hex()
	}
	return d
}
