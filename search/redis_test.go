package search

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func newTestIndex(t *testing.T) (*RedisIndex, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisIndex(client), mr
}

func TestUpsertAndQuery(t *testing.T) {
	ix, _ := newTestIndex(t)
	ctx := context.Background()

	milk := Entry{TaskID: uuid.New(), Title: "Buy milk", CategoryName: "Errands"}
	report := Entry{TaskID: uuid.New(), Title: "Quarterly report", Description: "due friday", CategoryName: "Work"}
	if err := ix.Upsert(ctx, "personal", milk, report); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := ix.Query(ctx, "personal", "MILK")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 || got[0].TaskID != milk.TaskID {
		t.Fatalf("expected the milk entry, got %v", got)
	}

	// Description and category name are searchable too.
	got, err = ix.Query(ctx, "personal", "friday")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 || got[0].TaskID != report.TaskID {
		t.Fatalf("expected the report entry, got %v", got)
	}
	got, err = ix.Query(ctx, "personal", "errands")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 || got[0].TaskID != milk.TaskID {
		t.Fatalf("expected the milk entry, got %v", got)
	}
}

func TestUpsertReplacesDocument(t *testing.T) {
	ix, _ := newTestIndex(t)
	ctx := context.Background()
	id := uuid.New()

	if err := ix.Upsert(ctx, "personal", Entry{TaskID: id, Title: "Buy milk"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := ix.Upsert(ctx, "personal", Entry{TaskID: id, Title: "Buy oat milk"}); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}

	got, err := ix.Query(ctx, "personal", "")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 || got[0].Title != "Buy oat milk" {
		t.Fatalf("expected the replaced entry, got %v", got)
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	ix, _ := newTestIndex(t)
	ctx := context.Background()
	id := uuid.New()

	if err := ix.Upsert(ctx, "personal", Entry{TaskID: id, Title: "Buy milk"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := ix.Remove(ctx, "personal", id); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := ix.Remove(ctx, "personal", id); err != nil {
		t.Fatalf("second remove: %v", err)
	}

	got, err := ix.Query(ctx, "personal", "")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("removed entry still indexed: %v", got)
	}
}

func TestProfilesAreIsolated(t *testing.T) {
	ix, _ := newTestIndex(t)
	ctx := context.Background()

	if err := ix.Upsert(ctx, "personal", Entry{TaskID: uuid.New(), Title: "Buy milk"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := ix.Upsert(ctx, "work", Entry{TaskID: uuid.New(), Title: "Quarterly report"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := ix.Query(ctx, "work", "milk")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("personal entry leaked into work profile: %v", got)
	}
}

func TestQueryDropsCorruptDocuments(t *testing.T) {
	ix, mr := newTestIndex(t)
	ctx := context.Background()

	good := Entry{TaskID: uuid.New(), Title: "Buy milk"}
	if err := ix.Upsert(ctx, "personal", good); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	bad := uuid.New()
	if _, err := mr.SetAdd(SetKey("personal"), bad.String()); err != nil {
		t.Fatalf("seed member: %v", err)
	}
	if err := mr.Set(DocKey("personal", bad), "{not json"); err != nil {
		t.Fatalf("seed document: %v", err)
	}

	got, err := ix.Query(ctx, "personal", "")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 || got[0].TaskID != good.TaskID {
		t.Fatalf("expected only the intact entry, got %v", got)
	}

	// The corrupt document was dropped from the index.
	if member, err := mr.IsMember(SetKey("personal"), bad.String()); err == nil && member {
		t.Fatal("corrupt member still registered")
	}
}

func TestQueryOrdersByTitle(t *testing.T) {
	ix, _ := newTestIndex(t)
	ctx := context.Background()

	entries := []Entry{
		{TaskID: uuid.New(), Title: "zebra enclosure"},
		{TaskID: uuid.New(), Title: "Apple pie"},
		{TaskID: uuid.New(), Title: "mango chutney"},
	}
	if err := ix.Upsert(ctx, "personal", entries...); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := ix.Query(ctx, "personal", "")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected all entries, got %v", got)
	}
	if got[0].Title != "Apple pie" || got[1].Title != "mango chutney" || got[2].Title != "zebra enclosure" {
		t.Fatalf("unexpected order: %v", got)
	}
}

func TestClearDropsProfileIndex(t *testing.T) {
	ix, mr := newTestIndex(t)
	ctx := context.Background()

	id := uuid.New()
	if err := ix.Upsert(ctx, "personal", Entry{TaskID: id, Title: "Buy milk"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := ix.Clear(ctx, "personal"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if mr.Exists(SetKey("personal")) || mr.Exists(DocKey("personal", id)) {
		t.Fatal("profile index still present after clear")
	}
}
