package threads

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"town-desk/config"
	"town-desk/models"
)

// ErrThreadArchived is returned when linking into an archived thread.
var ErrThreadArchived = errors.New("thread is archived")

// Minimum shared entities before SuggestThread proposes an existing thread
// instead of a new one.
const matchOverlapThreshold = 2

// LockPhaseThreadLink is the advisory-lock phase serializing link writes per
// thread.
const LockPhaseThreadLink = "thread_link"

// ThreadStore is the story_threads persistence surface.
type ThreadStore interface {
	Insert(ctx context.Context, thread *models.StoryThread) (*models.StoryThread, error)
	FindByID(ctx context.Context, threadID primitive.ObjectID) (*models.StoryThread, error)
	// ListActiveByCommunity returns threads in developing, monitoring or
	// dormant status for one community.
	ListActiveByCommunity(ctx context.Context, communityID string) ([]models.StoryThread, error)
	UpdateStatus(ctx context.Context, threadID primitive.ObjectID, status models.ThreadStatus) error
	SetResolution(ctx context.Context, threadID primitive.ObjectID, resolution models.Resolution) error
	// RecordDevelopment merges new entities and bumps last_development_at,
	// reactivating dormant or monitoring threads to developing.
	RecordDevelopment(ctx context.Context, threadID primitive.ObjectID, entities models.EntitySet, at time.Time) error
	// ListStale returns developing or monitoring threads with no development
	// since the cutoff.
	ListStale(ctx context.Context, cutoff time.Time) ([]models.StoryThread, error)
}

// LinkStore is the story_thread_articles persistence surface.
type LinkStore interface {
	// Insert fails with models.ErrDuplicateThreadArticle or
	// models.ErrSequenceConflict on the corresponding unique index.
	Insert(ctx context.Context, link *models.StoryThreadArticle) error
	MaxSequence(ctx context.Context, threadID primitive.ObjectID) (int, error)
	CountByThread(ctx context.Context, threadID primitive.ObjectID) (int, error)
	ListByThread(ctx context.Context, threadID primitive.ObjectID) ([]models.StoryThreadArticle, error)
}

// TriggerStore is the follow_up_triggers persistence surface.
type TriggerStore interface {
	Insert(ctx context.Context, trigger *models.FollowUpTrigger) error
	ListDue(ctx context.Context, now time.Time) ([]models.FollowUpTrigger, error)
	CountPendingByThread(ctx context.Context, threadID primitive.ObjectID) (int, error)
	// ReschedulePendingTimeBased moves next_check_at for every pending
	// time-based trigger on the thread.
	ReschedulePendingTimeBased(ctx context.Context, threadID primitive.ObjectID, nextCheckAt time.Time) error
	Update(ctx context.Context, trigger *models.FollowUpTrigger) error
	CancelPendingByThread(ctx context.Context, threadID primitive.ObjectID) error
}

// Locker is the advisory phase lock used to serialize per-thread link writes.
type Locker interface {
	Acquire(ctx context.Context, resourceID primitive.ObjectID, phase string) error
	Release(ctx context.Context, resourceID primitive.ObjectID, phase string) error
}

// EntityOverlap counts entities two sets share, case-sensitively, across all
// entity classes.
func EntityOverlap(a, b models.EntitySet) int {
	count := 0
	count += overlap(a.People, b.People)
	count += overlap(a.Organizations, b.Organizations)
	count += overlap(a.Locations, b.Locations)
	count += overlap(a.Businesses, b.Businesses)
	return count
}

func overlap(a, b []string) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(a))
	for _, s := range a {
		set[s] = struct{}{}
	}
	n := 0
	for _, s := range b {
		if _, ok := set[s]; ok {
			n++
		}
	}
	return n
}

// InferRole picks the narrative role for a new link: the first article is
// always the origin; afterwards the caller's hint wins, defaulting to
// development.
func InferRole(existingLinks int, hint models.NarrativeRole) models.NarrativeRole {
	if existingLinks == 0 {
		return models.RoleOrigin
	}
	if hint != "" {
		return hint
	}
	return models.RoleDevelopment
}

// Manager groups published articles into longitudinal story threads and
// schedules follow-up work on them.
type Manager struct {
	threads  ThreadStore
	links    LinkStore
	triggers TriggerStore
	locker   Locker
	cfg      config.PipelineConfig
}

func NewManager(threads ThreadStore, links LinkStore, triggers TriggerStore, locker Locker, cfg config.PipelineConfig) *Manager {
	return &Manager{threads: threads, links: links, triggers: triggers, locker: locker, cfg: cfg}
}

// SuggestThread is the lightweight matching heuristic callers may use to
// pick a candidate thread for LinkOrCreate: the active community thread with
// the highest entity overlap, nil when nothing overlaps enough. The manager
// itself never matches; it only enforces linking invariants.
func (m *Manager) SuggestThread(ctx context.Context, communityID string, entities models.EntitySet) (*primitive.ObjectID, error) {
	candidates, err := m.threads.ListActiveByCommunity(ctx, communityID)
	if err != nil {
		return nil, err
	}

	var best *models.StoryThread
	bestOverlap := 0
	for i := range candidates {
		score := EntityOverlap(candidates[i].KeyEntities, entities)
		if score > bestOverlap {
			best = &candidates[i]
			bestOverlap = score
		}
	}
	if best == nil || bestOverlap < matchOverlapThreshold {
		return nil, nil
	}
	return &best.ID, nil
}

// LinkOrCreate attaches a published article to the candidate thread when one
// is supplied, or opens a new thread around the article when it is nil.
func (m *Manager) LinkOrCreate(ctx context.Context, draft *models.NewsArticleDraft, item *models.RawContentItem, candidateID *primitive.ObjectID, roleHint models.NarrativeRole) (*models.StoryThread, *models.StoryThreadArticle, error) {
	var thread *models.StoryThread
	if candidateID != nil {
		found, err := m.threads.FindByID(ctx, *candidateID)
		if err != nil {
			return nil, nil, err
		}
		thread = found
	} else {
		created, err := m.createThread(ctx, draft, item)
		if err != nil {
			return nil, nil, err
		}
		thread = created
	}

	link, err := m.Link(ctx, thread, draft.ID, item.Entities, roleHint)
	if err != nil {
		return nil, nil, err
	}
	return thread, link, nil
}

func (m *Manager) createThread(ctx context.Context, draft *models.NewsArticleDraft, item *models.RawContentItem) (*models.StoryThread, error) {
	now := time.Now()
	priority := 0
	if item.Scores.NewsValue != nil {
		priority = *item.Scores.NewsValue / 10
	}
	thread := &models.StoryThread{
		CreatedAt:         now,
		UpdatedAt:         now,
		CommunityID:       item.CommunityID,
		Title:             draft.Title,
		Status:            models.ThreadDeveloping,
		Priority:          priority,
		KeyEntities:       item.Entities,
		LastDevelopmentAt: now,
	}
	inserted, err := m.threads.Insert(ctx, thread)
	if err != nil {
		return nil, err
	}
	config.Logger.Infof("opened story thread %s (%s) for community %s",
		inserted.ID.Hex(), inserted.Title, inserted.CommunityID)
	return inserted, nil
}

// Link appends one article to a thread under the thread-scoped advisory
// lock. Sequence numbers are strictly increasing per thread.
func (m *Manager) Link(ctx context.Context, thread *models.StoryThread, articleID primitive.ObjectID, entities models.EntitySet, roleHint models.NarrativeRole) (*models.StoryThreadArticle, error) {
	if thread.Status == models.ThreadArchived {
		return nil, fmt.Errorf("linking article %s to thread %s: %w", articleID.Hex(), thread.ID.Hex(), ErrThreadArchived)
	}

	if err := m.locker.Acquire(ctx, thread.ID, LockPhaseThreadLink); err != nil {
		return nil, err
	}
	defer func() {
		if err := m.locker.Release(ctx, thread.ID, LockPhaseThreadLink); err != nil {
			config.Logger.Warnf("failed to release thread link lock %s: %v", thread.ID.Hex(), err)
		}
	}()

	existing, err := m.links.CountByThread(ctx, thread.ID)
	if err != nil {
		return nil, err
	}
	maxSeq, err := m.links.MaxSequence(ctx, thread.ID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	link := &models.StoryThreadArticle{
		CreatedAt:      now,
		ThreadID:       thread.ID,
		ArticleID:      articleID,
		NarrativeRole:  InferRole(existing, roleHint),
		SequenceNumber: maxSeq + 1,
	}
	if err := m.links.Insert(ctx, link); err != nil {
		return nil, err
	}

	if err := m.threads.RecordDevelopment(ctx, thread.ID, entities, now); err != nil {
		return nil, err
	}
	if err := m.recomputeFollowUps(ctx, thread.ID, now); err != nil {
		return nil, err
	}

	config.Logger.Infof("linked article %s to thread %s as %s (seq %d)",
		articleID.Hex(), thread.ID.Hex(), link.NarrativeRole, link.SequenceNumber)
	return link, nil
}

// recomputeFollowUps reacts to a new development: pending time-based
// triggers are rescheduled from the new last_development_at, and a thread
// with no pending trigger gets a fresh one.
func (m *Manager) recomputeFollowUps(ctx context.Context, threadID primitive.ObjectID, now time.Time) error {
	pending, err := m.triggers.CountPendingByThread(ctx, threadID)
	if err != nil {
		return err
	}
	if pending > 0 {
		return m.triggers.ReschedulePendingTimeBased(ctx, threadID, now.Add(m.cfg.FollowUpInterval()))
	}

	interval := m.cfg.FollowUpInterval()
	expires := now.Add(4 * interval)
	trigger := &models.FollowUpTrigger{
		CreatedAt:   now,
		UpdatedAt:   now,
		ThreadID:    threadID,
		Type:        models.TriggerTimeBased,
		Condition:   models.TriggerCondition{Note: "periodic thread follow-up"},
		Status:      models.TriggerPending,
		MaxChecks:   4,
		NextCheckAt: now.Add(interval),
		ExpiresAt:   &expires,
	}
	return m.triggers.Insert(ctx, trigger)
}

// ScheduleTrigger stores an explicit follow-up condition against a thread.
func (m *Manager) ScheduleTrigger(ctx context.Context, trigger *models.FollowUpTrigger) error {
	if trigger.Status == "" {
		trigger.Status = models.TriggerPending
	}
	now := time.Now()
	trigger.CreatedAt = now
	trigger.UpdatedAt = now
	if trigger.NextCheckAt.IsZero() {
		trigger.NextCheckAt = now.Add(m.cfg.FollowUpInterval())
	}
	return m.triggers.Insert(ctx, trigger)
}

// Resolve closes a thread with an explicit resolution and cancels its
// pending triggers.
func (m *Manager) Resolve(ctx context.Context, threadID primitive.ObjectID, resolutionType, summary string) error {
	resolution := models.Resolution{Type: resolutionType, Summary: summary, At: time.Now()}
	if err := m.threads.SetResolution(ctx, threadID, resolution); err != nil {
		return err
	}
	if err := m.threads.UpdateStatus(ctx, threadID, models.ThreadResolved); err != nil {
		return err
	}
	if err := m.triggers.CancelPendingByThread(ctx, threadID); err != nil {
		return err
	}
	config.Logger.Infof("thread %s resolved (%s)", threadID.Hex(), resolutionType)
	return nil
}

// Archive moves a thread to the archived terminal state. Archived threads
// reject further links.
func (m *Manager) Archive(ctx context.Context, threadID primitive.ObjectID) error {
	if err := m.threads.UpdateStatus(ctx, threadID, models.ThreadArchived); err != nil {
		return err
	}
	return m.triggers.CancelPendingByThread(ctx, threadID)
}

// ScanDueTriggers evaluates due follow-up triggers and applies the dormancy
// window to stale threads. Returns how many triggers fired.
func (m *Manager) ScanDueTriggers(ctx context.Context, now time.Time) (int, error) {
	due, err := m.triggers.ListDue(ctx, now)
	if err != nil {
		return 0, err
	}

	fired := 0
	for i := range due {
		trigger := &due[i]

		if trigger.Exhausted(now) {
			trigger.Status = models.TriggerExpired
			trigger.UpdatedAt = now
			if err := m.triggers.Update(ctx, trigger); err != nil {
				return fired, err
			}
			continue
		}

		trigger.CheckCount++
		met, err := m.conditionMet(ctx, trigger, now)
		if err != nil {
			return fired, err
		}
		if met {
			trigger.Status = models.TriggerTriggered
			fired++
			if err := m.threads.UpdateStatus(ctx, trigger.ThreadID, models.ThreadMonitoring); err != nil {
				return fired, err
			}
			config.Logger.Infof("follow-up trigger %s fired for thread %s (%s)",
				trigger.ID.Hex(), trigger.ThreadID.Hex(), trigger.Type)
		} else {
			trigger.NextCheckAt = now.Add(m.cfg.FollowUpInterval())
		}
		trigger.UpdatedAt = now
		if err := m.triggers.Update(ctx, trigger); err != nil {
			return fired, err
		}
	}

	if err := m.applyDormancy(ctx, now); err != nil {
		return fired, err
	}
	return fired, nil
}

func (m *Manager) conditionMet(ctx context.Context, trigger *models.FollowUpTrigger, now time.Time) (bool, error) {
	switch trigger.Type {
	case models.TriggerTimeBased:
		return true, nil
	case models.TriggerDateEvent:
		return trigger.Condition.EventDate != nil && !now.Before(*trigger.Condition.EventDate), nil
	case models.TriggerEngagementThreshold:
		thread, err := m.threads.FindByID(ctx, trigger.ThreadID)
		if err != nil {
			return false, err
		}
		return thread.Engagement.Total() >= trigger.Condition.EngagementThreshold, nil
	default:
		// external_update, resolution_check and scheduled_search are
		// resolved by editors through the review surface; the scan only
		// keeps them on schedule.
		return false, nil
	}
}

func (m *Manager) applyDormancy(ctx context.Context, now time.Time) error {
	cutoff := now.Add(-m.cfg.DormantAge())
	stale, err := m.threads.ListStale(ctx, cutoff)
	if err != nil {
		return err
	}
	for _, thread := range stale {
		if err := m.threads.UpdateStatus(ctx, thread.ID, models.ThreadDormant); err != nil {
			return err
		}
		config.Logger.Infof("thread %s gone dormant (no development since %s)",
			thread.ID.Hex(), thread.LastDevelopmentAt.Format(time.RFC3339))
	}
	return nil
}
