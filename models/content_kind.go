package models

// ContentKind is the typed polymorphic content reference used by routing and
// moderation. Keeping it an enum lets the router and the moderation gate
// switch over it exhaustively.
type ContentKind string

const (
	KindArticle      ContentKind = "article"
	KindAnnouncement ContentKind = "announcement"
	KindEvent        ContentKind = "event"
	KindLegalNotice  ContentKind = "legal_notice"
	KindMemorial     ContentKind = "memorial"

	// KindDraft is not a publication target; it exists so moderation logs can
	// reference drafts held for review.
	KindDraft ContentKind = "draft"
)

// PublicationKinds are the kinds the content router may emit.
var PublicationKinds = []ContentKind{
	KindArticle,
	KindAnnouncement,
	KindEvent,
	KindLegalNotice,
	KindMemorial,
}

// IsPublication reports whether k is a routable publication kind.
func (k ContentKind) IsPublication() bool {
	switch k {
	case KindArticle, KindAnnouncement, KindEvent, KindLegalNotice, KindMemorial:
		return true
	}
	return false
}
