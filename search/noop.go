package search

import (
	"context"

	"github.com/google/uuid"
)

// NoopIndex satisfies the store's index contract for hosts that run
// without Redis. Every call succeeds and nothing is indexed.
type NoopIndex struct{}

func (NoopIndex) Upsert(context.Context, string, ...Entry) error { return nil }

func (NoopIndex) Remove(context.Context, string, uuid.UUID) error { return nil }
