package storage

import "context"

// Bucket is durable per-origin key/value storage. Implementations must be
// safe for concurrent use; writes are last-writer-wins (cap decisions are
// advisory, not correctness-critical, so no transactional guarantee is
// required).
type Bucket interface {
	// Get returns the value for key. The second return is false when the
	// key is absent.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set writes the value for key.
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}

// Well-known keys. The long-lived bucket holds the visitor identity and the
// frequency-cap ledger; the session bucket holds everything scoped to one
// browser session.
const (
	KeyVisitorID       = "visitorId"
	KeyFrequencyLedger = "frequencyLedger"

	KeySessionID        = "sessionId"
	KeyChatSessionID    = "chatSessionId"
	KeyAutoOpened       = "autoOpened"
	KeyAIConversationID = "aiConversationId"
)

// Store bundles the two persistence buckets. Session holds state discarded
// at browser-session end; Durable holds state that outlives the page.
type Store struct {
	Session Bucket
	Durable Bucket
}
