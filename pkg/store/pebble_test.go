package store_test

import (
	"encoding/json"
	"testing"
	"time"

	"gptchat/pkg/models"
	"gptchat/pkg/store"
)

func openTestStore(t *testing.T) {
	t.Helper()
	if err := store.Open(t.TempDir()); err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		store.SetNotifier(nil)
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
}

func TestThreadCRUD(t *testing.T) {
	openTestStore(t)
	owner := "alice@example.com"
	th := models.Thread{ID: "thread-1-1", Owner: owner, Title: "first", CreatedTS: 100}
	if err := store.SaveThread(owner, th.ID, th); err != nil {
		t.Fatalf("save thread: %v", err)
	}
	got, err := store.GetThread(owner, th.ID)
	if err != nil {
		t.Fatalf("get thread: %v", err)
	}
	if got.Title != "first" || got.Owner != owner {
		t.Fatalf("unexpected thread %+v", got)
	}
	if _, err := store.GetThread(owner, "thread-missing"); !store.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := store.GetThread("mallory@example.com", th.ID); !store.IsNotFound(err) {
		t.Fatalf("thread visible to wrong owner: %v", err)
	}
}

func TestListThreadsAscendingByCreation(t *testing.T) {
	openTestStore(t)
	owner := "alice@example.com"
	for i, id := range []string{"thread-9-1", "thread-3-1", "thread-5-1"} {
		ts := []int64{900, 300, 500}[i]
		th := models.Thread{ID: id, Owner: owner, CreatedTS: ts}
		if err := store.SaveThread(owner, id, th); err != nil {
			t.Fatalf("save thread: %v", err)
		}
	}
	threads, err := store.ListThreads(owner)
	if err != nil {
		t.Fatalf("list threads: %v", err)
	}
	if len(threads) != 3 {
		t.Fatalf("expected 3 threads got %d", len(threads))
	}
	for i := 1; i < len(threads); i++ {
		if threads[i-1].CreatedTS > threads[i].CreatedTS {
			t.Fatalf("threads out of order: %v", threads)
		}
	}
}

func TestMessageOrderAndLimit(t *testing.T) {
	openTestStore(t)
	owner := "alice@example.com"
	tid := "thread-1-1"
	for i := 0; i < 5; i++ {
		m := models.Message{ID: "", Thread: tid, Text: string(rune('a' + i)), TS: int64(1000 + i)}
		if err := store.SaveMessage(owner, tid, m); err != nil {
			t.Fatalf("save message: %v", err)
		}
	}
	msgs, err := store.ListMessages(owner, tid)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 5 {
		t.Fatalf("expected 5 messages got %d", len(msgs))
	}
	var first models.Message
	if err := json.Unmarshal([]byte(msgs[0]), &first); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if first.Text != "a" {
		t.Fatalf("expected oldest first, got %q", first.Text)
	}

	tail, err := store.ListMessages(owner, tid, 2)
	if err != nil {
		t.Fatalf("list with limit: %v", err)
	}
	if len(tail) != 2 {
		t.Fatalf("expected 2 messages got %d", len(tail))
	}
	var last models.Message
	if err := json.Unmarshal([]byte(tail[1]), &last); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if last.Text != "e" {
		t.Fatalf("limit should keep most recent, got %q", last.Text)
	}
}

func TestUpdateMessageKeepsPosition(t *testing.T) {
	openTestStore(t)
	owner := "alice@example.com"
	tid := "thread-1-1"
	if err := store.SaveMessage(owner, tid, models.Message{ID: "msg-1", Thread: tid, Text: "hello", TS: 100}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.SaveMessage(owner, tid, models.Message{ID: "msg-2", Thread: tid, Text: "", IsLoading: true, TS: 200}); err != nil {
		t.Fatalf("save placeholder: %v", err)
	}
	if err := store.SaveMessage(owner, tid, models.Message{ID: "msg-3", Thread: tid, Text: "later", TS: 300}); err != nil {
		t.Fatalf("save: %v", err)
	}

	ph, err := store.GetMessage(owner, tid, "msg-2")
	if err != nil {
		t.Fatalf("get placeholder: %v", err)
	}
	if !ph.IsLoading {
		t.Fatalf("expected pending placeholder, got %+v", ph)
	}
	ph.Text = "the answer"
	ph.IsLoading = false
	ph.TS = time.Now().UnixNano()
	if err := store.UpdateMessage(owner, tid, ph); err != nil {
		t.Fatalf("update: %v", err)
	}

	msgs, err := store.ListMessages(owner, tid)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("update must not append, got %d messages", len(msgs))
	}
	var mid models.Message
	if err := json.Unmarshal([]byte(msgs[1]), &mid); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if mid.ID != "msg-2" || mid.Text != "the answer" || mid.IsLoading {
		t.Fatalf("placeholder not resolved in place: %+v", mid)
	}
}

func TestDeleteThreadRemovesMessages(t *testing.T) {
	openTestStore(t)
	owner := "alice@example.com"
	tid := "thread-1-1"
	if err := store.SaveThread(owner, tid, models.Thread{ID: tid, Owner: owner, CreatedTS: 1}); err != nil {
		t.Fatalf("save thread: %v", err)
	}
	if err := store.SaveMessage(owner, tid, models.Message{ID: "msg-1", Thread: tid, Text: "x", TS: 1}); err != nil {
		t.Fatalf("save message: %v", err)
	}
	if err := store.DeleteThread(owner, tid); err != nil {
		t.Fatalf("delete thread: %v", err)
	}
	if _, err := store.GetThread(owner, tid); !store.IsNotFound(err) {
		t.Fatalf("thread should be gone, got %v", err)
	}
	msgs, err := store.ListMessages(owner, tid)
	if err != nil {
		t.Fatalf("list after delete: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("messages should be gone, got %d", len(msgs))
	}
}

func TestSessionLifecycle(t *testing.T) {
	openTestStore(t)
	s := models.Session{ID: "sid-1", Owner: "alice@example.com", CreatedTS: 1, ExpiresTS: time.Now().Add(time.Hour).UnixNano()}
	if err := store.SaveSession(s); err != nil {
		t.Fatalf("save session: %v", err)
	}
	got, err := store.GetSession("sid-1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.Owner != s.Owner {
		t.Fatalf("unexpected session %+v", got)
	}
	if err := store.DeleteSession("sid-1"); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, err := store.GetSession("sid-1"); !store.IsNotFound(err) {
		t.Fatalf("session should be gone, got %v", err)
	}
	// deleting again is not an error
	if err := store.DeleteSession("sid-1"); err != nil {
		t.Fatalf("repeat delete: %v", err)
	}
}

func TestSweepSessions(t *testing.T) {
	openTestStore(t)
	now := time.Now().UnixNano()
	live := models.Session{ID: "sid-live", Owner: "a", ExpiresTS: now + int64(time.Hour)}
	dead := models.Session{ID: "sid-dead", Owner: "a", ExpiresTS: now - int64(time.Hour)}
	for _, s := range []models.Session{live, dead} {
		if err := store.SaveSession(s); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	removed, err := store.SweepSessions(now)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed got %d", removed)
	}
	if _, err := store.GetSession("sid-live"); err != nil {
		t.Fatalf("live session swept: %v", err)
	}
	if _, err := store.GetSession("sid-dead"); !store.IsNotFound(err) {
		t.Fatalf("expired session survived sweep: %v", err)
	}
}

func TestSystemKeysAndForEachThread(t *testing.T) {
	openTestStore(t)
	if v, err := store.GetSystemKey("version"); err != nil || v != "" {
		t.Fatalf("missing system key should be empty, got %q %v", v, err)
	}
	if err := store.SaveSystemKey("version", []byte("1.2.3")); err != nil {
		t.Fatalf("save system key: %v", err)
	}
	v, err := store.GetSystemKey("version")
	if err != nil || v != "1.2.3" {
		t.Fatalf("got %q %v", v, err)
	}
	if err := store.DeleteSystemKey("version"); err != nil {
		t.Fatalf("delete system key: %v", err)
	}

	for _, owner := range []string{"a@x.com", "b@x.com"} {
		th := models.Thread{ID: "thread-" + owner, Owner: owner, CreatedTS: 1}
		if err := store.SaveThread(owner, th.ID, th); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	seen := map[string]bool{}
	err = store.ForEachThread(func(th models.Thread) error {
		seen[th.Owner] = true
		return nil
	})
	if err != nil {
		t.Fatalf("foreach: %v", err)
	}
	if len(seen) != 2 {
		t.Fatalf("expected threads from both owners, got %v", seen)
	}
}

type recordingNotifier struct {
	threads  []string
	messages []string
}

func (n *recordingNotifier) ThreadsChanged(owner string) { n.threads = append(n.threads, owner) }
func (n *recordingNotifier) MessagesChanged(owner, threadID string) {
	n.messages = append(n.messages, owner+"/"+threadID)
}

func TestNotifierFiresOnWrites(t *testing.T) {
	openTestStore(t)
	n := &recordingNotifier{}
	store.SetNotifier(n)
	owner := "alice@example.com"
	if err := store.SaveThread(owner, "thread-1", models.Thread{ID: "thread-1", Owner: owner}); err != nil {
		t.Fatalf("save thread: %v", err)
	}
	if err := store.SaveMessage(owner, "thread-1", models.Message{ID: "msg-1", Text: "x"}); err != nil {
		t.Fatalf("save message: %v", err)
	}
	if len(n.threads) == 0 {
		t.Fatalf("thread write did not notify")
	}
	if len(n.messages) != 1 || n.messages[0] != owner+"/thread-1" {
		t.Fatalf("message notification wrong: %v", n.messages)
	}
}
