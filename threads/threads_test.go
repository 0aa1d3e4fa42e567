package threads_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"town-desk/config"
	"town-desk/models"
	"town-desk/threads"
)

type fakeThreadStore struct {
	threads map[primitive.ObjectID]*models.StoryThread
}

func newFakeThreadStore() *fakeThreadStore {
	return &fakeThreadStore{threads: map[primitive.ObjectID]*models.StoryThread{}}
}

func (s *fakeThreadStore) Insert(_ context.Context, thread *models.StoryThread) (*models.StoryThread, error) {
	thread.ID = primitive.NewObjectID()
	s.threads[thread.ID] = thread
	return thread, nil
}

func (s *fakeThreadStore) FindByID(_ context.Context, threadID primitive.ObjectID) (*models.StoryThread, error) {
	thread, ok := s.threads[threadID]
	if !ok {
		return nil, errors.New("not found")
	}
	return thread, nil
}

func (s *fakeThreadStore) ListActiveByCommunity(_ context.Context, communityID string) ([]models.StoryThread, error) {
	var out []models.StoryThread
	for _, thread := range s.threads {
		if thread.CommunityID != communityID {
			continue
		}
		switch thread.Status {
		case models.ThreadDeveloping, models.ThreadMonitoring, models.ThreadDormant:
			out = append(out, *thread)
		}
	}
	return out, nil
}

func (s *fakeThreadStore) UpdateStatus(_ context.Context, threadID primitive.ObjectID, status models.ThreadStatus) error {
	s.threads[threadID].Status = status
	return nil
}

func (s *fakeThreadStore) SetResolution(_ context.Context, threadID primitive.ObjectID, resolution models.Resolution) error {
	s.threads[threadID].Resolution = &resolution
	return nil
}

func (s *fakeThreadStore) RecordDevelopment(_ context.Context, threadID primitive.ObjectID, _ models.EntitySet, at time.Time) error {
	thread := s.threads[threadID]
	thread.Status = models.ThreadDeveloping
	thread.LastDevelopmentAt = at
	return nil
}

func (s *fakeThreadStore) ListStale(_ context.Context, cutoff time.Time) ([]models.StoryThread, error) {
	var out []models.StoryThread
	for _, thread := range s.threads {
		if thread.Status != models.ThreadDeveloping && thread.Status != models.ThreadMonitoring {
			continue
		}
		if thread.LastDevelopmentAt.Before(cutoff) {
			out = append(out, *thread)
		}
	}
	return out, nil
}

type fakeLinkStore struct {
	links []models.StoryThreadArticle
}

func (s *fakeLinkStore) Insert(_ context.Context, link *models.StoryThreadArticle) error {
	for _, existing := range s.links {
		if existing.ThreadID == link.ThreadID && existing.ArticleID == link.ArticleID {
			return models.ErrDuplicateThreadArticle
		}
		if existing.ThreadID == link.ThreadID && existing.SequenceNumber == link.SequenceNumber {
			return models.ErrSequenceConflict
		}
	}
	s.links = append(s.links, *link)
	return nil
}

func (s *fakeLinkStore) MaxSequence(_ context.Context, threadID primitive.ObjectID) (int, error) {
	max := 0
	for _, link := range s.links {
		if link.ThreadID == threadID && link.SequenceNumber > max {
			max = link.SequenceNumber
		}
	}
	return max, nil
}

func (s *fakeLinkStore) CountByThread(_ context.Context, threadID primitive.ObjectID) (int, error) {
	n := 0
	for _, link := range s.links {
		if link.ThreadID == threadID {
			n++
		}
	}
	return n, nil
}

func (s *fakeLinkStore) ListByThread(_ context.Context, threadID primitive.ObjectID) ([]models.StoryThreadArticle, error) {
	var out []models.StoryThreadArticle
	for _, link := range s.links {
		if link.ThreadID == threadID {
			out = append(out, link)
		}
	}
	return out, nil
}

type fakeTriggerStore struct {
	triggers map[primitive.ObjectID]*models.FollowUpTrigger
}

func newFakeTriggerStore() *fakeTriggerStore {
	return &fakeTriggerStore{triggers: map[primitive.ObjectID]*models.FollowUpTrigger{}}
}

func (s *fakeTriggerStore) Insert(_ context.Context, trigger *models.FollowUpTrigger) error {
	trigger.ID = primitive.NewObjectID()
	s.triggers[trigger.ID] = trigger
	return nil
}

func (s *fakeTriggerStore) ListDue(_ context.Context, now time.Time) ([]models.FollowUpTrigger, error) {
	var out []models.FollowUpTrigger
	for _, trigger := range s.triggers {
		if trigger.Status == models.TriggerPending && !trigger.NextCheckAt.After(now) {
			out = append(out, *trigger)
		}
	}
	return out, nil
}

func (s *fakeTriggerStore) CountPendingByThread(_ context.Context, threadID primitive.ObjectID) (int, error) {
	n := 0
	for _, trigger := range s.triggers {
		if trigger.ThreadID == threadID && trigger.Status == models.TriggerPending {
			n++
		}
	}
	return n, nil
}

func (s *fakeTriggerStore) ReschedulePendingTimeBased(_ context.Context, threadID primitive.ObjectID, nextCheckAt time.Time) error {
	for _, trigger := range s.triggers {
		if trigger.ThreadID == threadID && trigger.Status == models.TriggerPending && trigger.Type == models.TriggerTimeBased {
			trigger.NextCheckAt = nextCheckAt
		}
	}
	return nil
}

func (s *fakeTriggerStore) Update(_ context.Context, trigger *models.FollowUpTrigger) error {
	s.triggers[trigger.ID] = trigger
	return nil
}

func (s *fakeTriggerStore) CancelPendingByThread(_ context.Context, threadID primitive.ObjectID) error {
	for _, trigger := range s.triggers {
		if trigger.ThreadID == threadID && trigger.Status == models.TriggerPending {
			trigger.Status = models.TriggerCancelled
		}
	}
	return nil
}

type fakeLocker struct {
	held     map[string]bool
	acquires int
	releases int
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: map[string]bool{}}
}

func (l *fakeLocker) Acquire(_ context.Context, resourceID primitive.ObjectID, phase string) error {
	key := resourceID.Hex() + "/" + phase
	if l.held[key] {
		return models.ErrLockHeld
	}
	l.held[key] = true
	l.acquires++
	return nil
}

func (l *fakeLocker) Release(_ context.Context, resourceID primitive.ObjectID, phase string) error {
	delete(l.held, resourceID.Hex()+"/"+phase)
	l.releases++
	return nil
}

func testCfg() config.PipelineConfig {
	return config.PipelineConfig{
		FollowUpCheckIntervalDays: 3,
		MaxThreadAgeBeforeDormant: 30,
	}
}

type fixture struct {
	threads  *fakeThreadStore
	links    *fakeLinkStore
	triggers *fakeTriggerStore
	locker   *fakeLocker
	manager  *threads.Manager
}

func newFixture() *fixture {
	f := &fixture{
		threads:  newFakeThreadStore(),
		links:    &fakeLinkStore{},
		triggers: newFakeTriggerStore(),
		locker:   newFakeLocker(),
	}
	f.manager = threads.NewManager(f.threads, f.links, f.triggers, f.locker, testCfg())
	return f
}

func entitySet(people ...string) models.EntitySet {
	return models.EntitySet{People: people}
}

func publishedDraft(title string) *models.NewsArticleDraft {
	return &models.NewsArticleDraft{
		ID:          primitive.NewObjectID(),
		Status:      models.DraftPublished,
		Title:       title,
		CommunityID: "springfield",
	}
}

func sourceItem(entities models.EntitySet) *models.RawContentItem {
	newsValue := 80
	return &models.RawContentItem{
		ID:          primitive.NewObjectID(),
		CommunityID: "springfield",
		Entities:    entities,
		Scores:      models.ContentScores{NewsValue: &newsValue},
	}
}

func TestEntityOverlapIgnoresDates(t *testing.T) {
	a := models.EntitySet{
		People:    []string{"Mayor Quimby"},
		Locations: []string{"Town Hall"},
		Dates:     []string{"2026-03-01"},
	}
	b := models.EntitySet{
		People:    []string{"Mayor Quimby"},
		Locations: []string{"Town Hall", "Main Street"},
		Dates:     []string{"2026-03-01"},
	}
	assert.Equal(t, 2, threads.EntityOverlap(a, b))
}

func TestInferRole(t *testing.T) {
	assert.Equal(t, models.RoleOrigin, threads.InferRole(0, models.RoleUpdate))
	assert.Equal(t, models.RoleUpdate, threads.InferRole(2, models.RoleUpdate))
	assert.Equal(t, models.RoleDevelopment, threads.InferRole(2, ""))
}

func TestLinkOrCreateOpensThread(t *testing.T) {
	f := newFixture()
	item := sourceItem(entitySet("Mayor Quimby"))
	draft := publishedDraft("Mayor announces budget")

	thread, link, err := f.manager.LinkOrCreate(context.Background(), draft, item, nil, "")
	require.NoError(t, err)
	assert.Equal(t, models.ThreadDeveloping, thread.Status)
	assert.Equal(t, "Mayor announces budget", thread.Title)
	assert.Equal(t, 8, thread.Priority)
	assert.Equal(t, models.RoleOrigin, link.NarrativeRole)
	assert.Equal(t, 1, link.SequenceNumber)

	// the first development schedules a follow-up trigger
	pending, err := f.triggers.CountPendingByThread(context.Background(), thread.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, pending)
}

func TestLinkSequenceNumbersIncrease(t *testing.T) {
	f := newFixture()
	item := sourceItem(entitySet("Mayor Quimby"))

	thread, first, err := f.manager.LinkOrCreate(context.Background(), publishedDraft("Origin"), item, nil, "")
	require.NoError(t, err)
	second, err := f.manager.Link(context.Background(), thread, primitive.NewObjectID(), item.Entities, "")
	require.NoError(t, err)
	third, err := f.manager.Link(context.Background(), thread, primitive.NewObjectID(), item.Entities, models.RoleUpdate)
	require.NoError(t, err)

	assert.Equal(t, 1, first.SequenceNumber)
	assert.Equal(t, 2, second.SequenceNumber)
	assert.Equal(t, 3, third.SequenceNumber)
	assert.Equal(t, models.RoleDevelopment, second.NarrativeRole)
	assert.Equal(t, models.RoleUpdate, third.NarrativeRole)
	assert.Equal(t, f.locker.acquires, f.locker.releases)
}

func TestLinkRejectsDuplicateArticle(t *testing.T) {
	f := newFixture()
	item := sourceItem(entitySet("Mayor Quimby"))
	draft := publishedDraft("Origin")

	thread, _, err := f.manager.LinkOrCreate(context.Background(), draft, item, nil, "")
	require.NoError(t, err)

	_, err = f.manager.Link(context.Background(), thread, draft.ID, item.Entities, "")
	assert.True(t, errors.Is(err, models.ErrDuplicateThreadArticle))
}

func TestLinkRejectsArchivedThread(t *testing.T) {
	f := newFixture()
	thread, err := f.threads.Insert(context.Background(), &models.StoryThread{
		Status:      models.ThreadArchived,
		CommunityID: "springfield",
	})
	require.NoError(t, err)

	_, err = f.manager.Link(context.Background(), thread, primitive.NewObjectID(), models.EntitySet{}, "")
	assert.True(t, errors.Is(err, threads.ErrThreadArchived))
	assert.Zero(t, f.locker.acquires)
}

func TestSuggestThreadRequiresMinimumOverlap(t *testing.T) {
	f := newFixture()
	_, _, err := f.manager.LinkOrCreate(context.Background(), publishedDraft("Origin"),
		sourceItem(models.EntitySet{People: []string{"Mayor Quimby"}, Locations: []string{"Town Hall"}}), nil, "")
	require.NoError(t, err)

	// one shared entity is not enough
	candidate, err := f.manager.SuggestThread(context.Background(), "springfield", entitySet("Mayor Quimby"))
	require.NoError(t, err)
	assert.Nil(t, candidate)

	// two shared entities match
	candidate, err = f.manager.SuggestThread(context.Background(), "springfield",
		models.EntitySet{People: []string{"Mayor Quimby"}, Locations: []string{"Town Hall"}})
	require.NoError(t, err)
	require.NotNil(t, candidate)
}

func TestSuggestThreadIgnoresOtherCommunities(t *testing.T) {
	f := newFixture()
	entities := models.EntitySet{People: []string{"Mayor Quimby"}, Locations: []string{"Town Hall"}}
	_, _, err := f.manager.LinkOrCreate(context.Background(), publishedDraft("Origin"), sourceItem(entities), nil, "")
	require.NoError(t, err)

	candidate, err := f.manager.SuggestThread(context.Background(), "shelbyville", entities)
	require.NoError(t, err)
	assert.Nil(t, candidate)
}

func TestResolveCancelsPendingTriggers(t *testing.T) {
	f := newFixture()
	thread, _, err := f.manager.LinkOrCreate(context.Background(), publishedDraft("Origin"),
		sourceItem(entitySet("Mayor Quimby")), nil, "")
	require.NoError(t, err)

	require.NoError(t, f.manager.Resolve(context.Background(), thread.ID, "story_concluded", "budget passed and implemented"))

	stored := f.threads.threads[thread.ID]
	assert.Equal(t, models.ThreadResolved, stored.Status)
	require.NotNil(t, stored.Resolution)
	assert.Equal(t, "story_concluded", stored.Resolution.Type)

	pending, err := f.triggers.CountPendingByThread(context.Background(), thread.ID)
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestScanDueTriggersFiresTimeBased(t *testing.T) {
	f := newFixture()
	thread, _, err := f.manager.LinkOrCreate(context.Background(), publishedDraft("Origin"),
		sourceItem(entitySet("Mayor Quimby")), nil, "")
	require.NoError(t, err)

	// jump past the follow-up interval
	fired, err := f.manager.ScanDueTriggers(context.Background(), time.Now().Add(4*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, fired)
	assert.Equal(t, models.ThreadMonitoring, f.threads.threads[thread.ID].Status)
}

func TestScanDueTriggersExpiresExhausted(t *testing.T) {
	f := newFixture()
	thread, err := f.threads.Insert(context.Background(), &models.StoryThread{
		Status:            models.ThreadDeveloping,
		CommunityID:       "springfield",
		LastDevelopmentAt: time.Now(),
	})
	require.NoError(t, err)

	trigger := &models.FollowUpTrigger{
		ThreadID:    thread.ID,
		Type:        models.TriggerTimeBased,
		Status:      models.TriggerPending,
		CheckCount:  4,
		MaxChecks:   4,
		NextCheckAt: time.Now().Add(-time.Hour),
	}
	require.NoError(t, f.triggers.Insert(context.Background(), trigger))

	fired, err := f.manager.ScanDueTriggers(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, fired)
	assert.Equal(t, models.TriggerExpired, f.triggers.triggers[trigger.ID].Status)
}

func TestScanDueTriggersEngagementThreshold(t *testing.T) {
	f := newFixture()
	thread, err := f.threads.Insert(context.Background(), &models.StoryThread{
		Status:            models.ThreadDeveloping,
		CommunityID:       "springfield",
		LastDevelopmentAt: time.Now(),
		Engagement:        models.EngagementSnapshot{Views: 500, Comments: 40, Shares: 60},
	})
	require.NoError(t, err)

	below := &models.FollowUpTrigger{
		ThreadID:    thread.ID,
		Type:        models.TriggerEngagementThreshold,
		Condition:   models.TriggerCondition{EngagementThreshold: 1000},
		Status:      models.TriggerPending,
		MaxChecks:   4,
		NextCheckAt: time.Now().Add(-time.Hour),
	}
	require.NoError(t, f.triggers.Insert(context.Background(), below))

	fired, err := f.manager.ScanDueTriggers(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, fired)
	assert.Equal(t, 1, f.triggers.triggers[below.ID].CheckCount)

	met := &models.FollowUpTrigger{
		ThreadID:    thread.ID,
		Type:        models.TriggerEngagementThreshold,
		Condition:   models.TriggerCondition{EngagementThreshold: 600},
		Status:      models.TriggerPending,
		MaxChecks:   4,
		NextCheckAt: time.Now().Add(-time.Hour),
	}
	require.NoError(t, f.triggers.Insert(context.Background(), met))

	fired, err = f.manager.ScanDueTriggers(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, fired)
	assert.Equal(t, models.TriggerTriggered, f.triggers.triggers[met.ID].Status)
}

func TestScanDueTriggersAppliesDormancy(t *testing.T) {
	f := newFixture()
	stale, err := f.threads.Insert(context.Background(), &models.StoryThread{
		Status:            models.ThreadDeveloping,
		CommunityID:       "springfield",
		LastDevelopmentAt: time.Now().Add(-40 * 24 * time.Hour),
	})
	require.NoError(t, err)
	fresh, err := f.threads.Insert(context.Background(), &models.StoryThread{
		Status:            models.ThreadDeveloping,
		CommunityID:       "springfield",
		LastDevelopmentAt: time.Now().Add(-time.Hour),
	})
	require.NoError(t, err)

	_, err = f.manager.ScanDueTriggers(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, models.ThreadDormant, f.threads.threads[stale.ID].Status)
	assert.Equal(t, models.ThreadDeveloping, f.threads.threads[fresh.ID].Status)
}

func TestScheduleTriggerDefaults(t *testing.T) {
	f := newFixture()
	threadID := primitive.NewObjectID()

	trigger := &models.FollowUpTrigger{
		ThreadID:  threadID,
		Type:      models.TriggerDateEvent,
		Condition: models.TriggerCondition{EventDate: timePtr(time.Now().Add(48 * time.Hour))},
		MaxChecks: 6,
	}
	require.NoError(t, f.manager.ScheduleTrigger(context.Background(), trigger))
	assert.Equal(t, models.TriggerPending, trigger.Status)
	assert.False(t, trigger.NextCheckAt.IsZero())
}

func timePtr(t time.Time) *time.Time {
	return &t
}
