package models

import "errors"

// Persistence-level invariant violations surfaced to services. Repositories
// translate Mongo duplicate-key errors on the corresponding unique indexes
// into these sentinels.
var (
	// ErrLockHeld means another worker holds the (resource, phase) lock.
	ErrLockHeld = errors.New("phase lock already held")
	// ErrDuplicateThreadArticle means the article is already linked to the thread.
	ErrDuplicateThreadArticle = errors.New("article already linked to thread")
	// ErrSequenceConflict means the thread sequence number was already taken.
	ErrSequenceConflict = errors.New("thread sequence number already used")
)
