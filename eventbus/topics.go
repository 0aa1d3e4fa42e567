package eventbus

// Phase queue topics. One durable queue per pipeline phase so any stage can
// be retried independently of the others.

var (
	TopicClassify  = NewTopic("town-desk.item.classify")
	TopicScore     = NewTopic("town-desk.item.score")
	TopicDraft     = NewTopic("town-desk.draft.generate")
	TopicFactCheck = NewTopic("town-desk.draft.factcheck")
	TopicRoute     = NewTopic("town-desk.item.route")
)

var AllTopics = []Topic{
	TopicClassify,
	TopicScore,
	TopicDraft,
	TopicFactCheck,
	TopicRoute,
}
