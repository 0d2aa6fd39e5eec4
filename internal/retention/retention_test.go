package retention_test

import (
	"testing"
	"time"

	"gptchat/internal/retention"
	"gptchat/pkg/models"
	"gptchat/pkg/store"
)

func openTestStore(t *testing.T) {
	t.Helper()
	if err := store.Open(t.TempDir()); err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
}

func TestRunImmediateSweepsExpiredSessions(t *testing.T) {
	openTestStore(t)
	now := time.Now().UnixNano()

	stale := models.Session{ID: "sess-stale", Owner: "alice", CreatedTS: now - 2e9, ExpiresTS: now - 1e9}
	live := models.Session{ID: "sess-live", Owner: "bob", CreatedTS: now, ExpiresTS: now + int64(time.Hour)}
	for _, s := range []models.Session{stale, live} {
		if err := store.SaveSession(s); err != nil {
			t.Fatalf("save session: %v", err)
		}
	}

	if err := retention.RunImmediate(); err != nil {
		t.Fatalf("run sweep: %v", err)
	}

	if _, err := store.GetSession("sess-stale"); !store.IsNotFound(err) {
		t.Fatalf("expected stale session gone, got %v", err)
	}
	if _, err := store.GetSession("sess-live"); err != nil {
		t.Fatalf("live session should survive sweep: %v", err)
	}
}

func TestRunImmediateEmptyStore(t *testing.T) {
	openTestStore(t)
	if err := retention.RunImmediate(); err != nil {
		t.Fatalf("sweep of empty store failed: %v", err)
	}
}
