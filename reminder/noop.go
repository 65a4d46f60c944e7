package reminder

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// NoopScheduler satisfies the store's scheduler contract for hosts that run
// without Redis. Every call succeeds and nothing is scheduled.
type NoopScheduler struct{}

func (NoopScheduler) Schedule(context.Context, string, uuid.UUID, time.Time) error { return nil }

func (NoopScheduler) Cancel(context.Context, string, uuid.UUID) error { return nil }
