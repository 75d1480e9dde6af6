// Package identity manages the visitor and browser-session identifiers
// anchoring all widget state.
package identity

import (
	"context"
	"fmt"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"github.com/hatchboard/engage-runtime/pkg/storage"
)

// Identity is the stable visitor/session pair. VisitorID persists
// indefinitely in the durable bucket; SessionID lives for one browser
// session.
type Identity struct {
	VisitorID string
	SessionID string
}

// Ensure loads the visitor and session ids, minting them on first sight.
// An id is never regenerated while a value already exists in its bucket.
func Ensure(ctx context.Context, store *storage.Store) (Identity, error) {
	visitorID, err := ensureID(ctx, store.Durable, storage.KeyVisitorID)
	if err != nil {
		return Identity{}, fmt.Errorf("visitor id: %w", err)
	}

	sessionID, err := ensureID(ctx, store.Session, storage.KeySessionID)
	if err != nil {
		return Identity{}, fmt.Errorf("session id: %w", err)
	}

	return Identity{VisitorID: visitorID, SessionID: sessionID}, nil
}

func ensureID(ctx context.Context, bucket storage.Bucket, key string) (string, error) {
	existing, ok, err := bucket.Get(ctx, key)
	if err != nil {
		return "", err
	}
	if ok && existing != "" {
		return existing, nil
	}

	id := ulid.Make().String()
	if err := bucket.Set(ctx, key, id); err != nil {
		return "", err
	}

	logrus.Debugf("minted new %s: %s", key, id)
	return id, nil
}
