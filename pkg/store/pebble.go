package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"

	"gptchat/pkg/logger"
	"gptchat/pkg/models"
)

var (
	db     *pebble.DB
	dbPath string
)

// seq provides a small counter to reduce key collisions when multiple
// messages share the same nanosecond timestamp.
var seq uint64

// Notifier receives change events after successful writes so live
// subscriptions can fan them out. Nil checks are done at call sites;
// SetNotifier is expected to run during startup, before serving.
type Notifier interface {
	ThreadsChanged(owner string)
	MessagesChanged(owner, threadID string)
}

var notifier Notifier

// SetNotifier installs the fan-out hook invoked after mutations.
func SetNotifier(n Notifier) { notifier = n }

func notifyThreads(owner string) {
	if notifier != nil {
		notifier.ThreadsChanged(owner)
	}
}

func notifyMessages(owner, threadID string) {
	if notifier != nil {
		notifier.MessagesChanged(owner, threadID)
	}
}

// Key layout. Records are addressed owner-first so one user's subtree is
// a single contiguous range:
//
//	user:<owner>:profile
//	user:<owner>:thread:<tid>:meta
//	user:<owner>:thread:<tid>:msg:<%020d ts>-<%06d seq>
//	user:<owner>:thread:<tid>:msgidx:<msgID>   -> message key
//	session:<sid>
//	system:<key>
func userKey(owner string) []byte {
	return []byte("user:" + owner + ":profile")
}

func threadMetaKey(owner, threadID string) []byte {
	return []byte("user:" + owner + ":thread:" + threadID + ":meta")
}

func msgPrefix(owner, threadID string) []byte {
	return []byte("user:" + owner + ":thread:" + threadID + ":msg:")
}

func msgIdxKey(owner, threadID, msgID string) []byte {
	return []byte("user:" + owner + ":thread:" + threadID + ":msgidx:" + msgID)
}

func sessionKey(id string) []byte {
	return []byte("session:" + id)
}

// prefixEnd returns the smallest key greater than every key with the
// given prefix, for use as a DeleteRange upper bound.
func prefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

// Open opens (or creates) a Pebble database at the given path and keeps
// a global handle for simple usage in this package.
func Open(path string) error {
	var err error
	logger.Info("opening_pebble_db", "path", path)
	db, err = pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return err
	}
	dbPath = path
	logger.Info("pebble_opened", "path", path)
	return nil
}

// Close closes the opened pebble DB if present.
func Close() error {
	if db == nil {
		return nil
	}
	if err := db.Close(); err != nil {
		return err
	}
	db = nil
	logger.Info("pebble_closed")
	return nil
}

// Ready reports whether the store is opened and ready.
func Ready() bool {
	return db != nil
}

func notOpen() error {
	return fmt.Errorf("pebble not opened; call store.Open first")
}

// SaveUser creates or replaces a user profile record.
func SaveUser(u models.User) error {
	if db == nil {
		return notOpen()
	}
	b, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}
	if err := db.Set(userKey(u.Email), b, pebble.Sync); err != nil {
		logger.Error("save_user_failed", "user", u.Email, "error", err)
		return err
	}
	logger.Info("user_saved", "user", u.Email)
	return nil
}

// GetUser returns the stored user profile for an email, or pebble.ErrNotFound.
func GetUser(email string) (models.User, error) {
	var u models.User
	if db == nil {
		return u, notOpen()
	}
	v, closer, err := db.Get(userKey(email))
	if err != nil {
		return u, err
	}
	defer closer.Close()
	if err := json.Unmarshal(v, &u); err != nil {
		return u, fmt.Errorf("invalid stored user: %w", err)
	}
	return u, nil
}

// SaveThread stores thread metadata under the owner's subtree.
func SaveThread(owner, threadID string, t models.Thread) error {
	if db == nil {
		return notOpen()
	}
	b, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal thread: %w", err)
	}
	if err := db.Set(threadMetaKey(owner, threadID), b, pebble.Sync); err != nil {
		logger.Error("save_thread_failed", "owner", owner, "thread", threadID, "error", err)
		return err
	}
	logger.Info("thread_saved", "owner", owner, "thread", threadID)
	notifyThreads(owner)
	return nil
}

// GetThread returns the stored thread metadata for an owner and thread ID.
func GetThread(owner, threadID string) (models.Thread, error) {
	var t models.Thread
	if db == nil {
		return t, notOpen()
	}
	v, closer, err := db.Get(threadMetaKey(owner, threadID))
	if err != nil {
		return t, err
	}
	defer closer.Close()
	if err := json.Unmarshal(v, &t); err != nil {
		return t, fmt.Errorf("invalid stored thread: %w", err)
	}
	return t, nil
}

// DeleteThread removes the thread metadata, all messages in the thread
// and the message-id index in one range delete per namespace.
func DeleteThread(owner, threadID string) error {
	if db == nil {
		return notOpen()
	}
	prefix := []byte("user:" + owner + ":thread:" + threadID + ":")
	if err := db.DeleteRange(prefix, prefixEnd(prefix), pebble.Sync); err != nil {
		logger.Error("delete_thread_failed", "owner", owner, "thread", threadID, "error", err)
		return err
	}
	logger.Info("thread_deleted", "owner", owner, "thread", threadID)
	notifyThreads(owner)
	return nil
}

// ListThreads returns all of an owner's threads ascending by creation time.
func ListThreads(owner string) ([]models.Thread, error) {
	if db == nil {
		return nil, notOpen()
	}
	prefix := []byte("user:" + owner + ":thread:")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Thread
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		if !bytes.HasSuffix(iter.Key(), []byte(":meta")) {
			continue
		}
		var t models.Thread
		if err := json.Unmarshal(iter.Value(), &t); err != nil {
			logger.Warn("list_threads_bad_record", "owner", owner, "key", string(iter.Key()))
			continue
		}
		out = append(out, t)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedTS < out[j].CreatedTS })
	return out, nil
}

// SaveMessage appends a message to a thread by inserting a new key with a
// sortable timestamp prefix, and indexes it by message ID so the message
// can be updated in place later. If msg.TS is zero it is assigned here.
func SaveMessage(owner, threadID string, msg models.Message) error {
	if db == nil {
		return notOpen()
	}
	if msg.TS == 0 {
		msg.TS = time.Now().UTC().UnixNano()
	}
	s := atomic.AddUint64(&seq, 1)
	key := fmt.Sprintf("%s%020d-%06d", msgPrefix(owner, threadID), msg.TS, s)

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := db.Set([]byte(key), data, pebble.Sync); err != nil {
		logger.Error("save_message_failed", "thread", threadID, "key", key, "error", err)
		return err
	}
	if msg.ID != "" {
		if err := db.Set(msgIdxKey(owner, threadID, msg.ID), []byte(key), pebble.Sync); err != nil {
			logger.Error("save_message_index_failed", "msg_id", msg.ID, "error", err)
			return err
		}
	}
	logger.Info("message_saved", "owner", owner, "thread", threadID, "msg_id", msg.ID)
	notifyMessages(owner, threadID)
	return nil
}

// GetMessage returns a message by its ID via the message-id index.
func GetMessage(owner, threadID, msgID string) (models.Message, error) {
	var m models.Message
	if db == nil {
		return m, notOpen()
	}
	kv, closer, err := db.Get(msgIdxKey(owner, threadID, msgID))
	if err != nil {
		return m, err
	}
	key := append([]byte(nil), kv...)
	closer.Close()
	v, closer, err := db.Get(key)
	if err != nil {
		return m, err
	}
	defer closer.Close()
	if err := json.Unmarshal(v, &m); err != nil {
		return m, fmt.Errorf("invalid stored message: %w", err)
	}
	return m, nil
}

// UpdateMessage rewrites an existing message in place, keeping its key
// (and therefore its position in the thread's order). Used to resolve a
// pending placeholder with the completion text.
func UpdateMessage(owner, threadID string, msg models.Message) error {
	if db == nil {
		return notOpen()
	}
	kv, closer, err := db.Get(msgIdxKey(owner, threadID, msg.ID))
	if err != nil {
		return fmt.Errorf("message %s not found: %w", msg.ID, err)
	}
	key := append([]byte(nil), kv...)
	closer.Close()

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := db.Set(key, data, pebble.Sync); err != nil {
		logger.Error("update_message_failed", "thread", threadID, "msg_id", msg.ID, "error", err)
		return err
	}
	logger.Info("message_updated", "owner", owner, "thread", threadID, "msg_id", msg.ID)
	notifyMessages(owner, threadID)
	return nil
}

// ListMessages returns all messages for a thread in insertion order as
// raw JSON values. An optional limit keeps only the most recent entries.
func ListMessages(owner, threadID string, limit ...int) ([]string, error) {
	if db == nil {
		return nil, notOpen()
	}
	prefix := msgPrefix(owner, threadID)
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []string
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		v := append([]byte(nil), iter.Value()...)
		out = append(out, string(v))
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	if len(limit) > 0 && limit[0] >= 0 && limit[0] < len(out) {
		out = out[len(out)-limit[0]:]
	}
	return out, nil
}

// SaveSession persists a login session record.
func SaveSession(s models.Session) error {
	if db == nil {
		return notOpen()
	}
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := db.Set(sessionKey(s.ID), b, pebble.Sync); err != nil {
		logger.Error("save_session_failed", "session", s.ID, "error", err)
		return err
	}
	return nil
}

// GetSession returns the stored session for an id, or pebble.ErrNotFound.
func GetSession(id string) (models.Session, error) {
	var s models.Session
	if db == nil {
		return s, notOpen()
	}
	v, closer, err := db.Get(sessionKey(id))
	if err != nil {
		return s, err
	}
	defer closer.Close()
	if err := json.Unmarshal(v, &s); err != nil {
		return s, fmt.Errorf("invalid stored session: %w", err)
	}
	return s, nil
}

// DeleteSession removes a session record. Deleting a missing session is
// not an error.
func DeleteSession(id string) error {
	if db == nil {
		return notOpen()
	}
	return db.Delete(sessionKey(id), pebble.Sync)
}

// ForEachThread visits every stored thread across all owners. The
// callback returning an error stops the scan.
func ForEachThread(fn func(t models.Thread) error) error {
	if db == nil {
		return notOpen()
	}
	prefix := []byte("user:")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return err
	}
	defer iter.Close()
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		k := iter.Key()
		if !bytes.HasPrefix(k, prefix) {
			break
		}
		if !bytes.HasSuffix(k, []byte(":meta")) {
			continue
		}
		var t models.Thread
		if err := json.Unmarshal(iter.Value(), &t); err != nil {
			logger.Error("skip_invalid_thread_record", "key", string(k), "error", err)
			continue
		}
		if err := fn(t); err != nil {
			return err
		}
	}
	return nil
}

// GetSystemKey reads a system record. Missing keys return an empty
// string and no error.
func GetSystemKey(key string) (string, error) {
	if db == nil {
		return "", notOpen()
	}
	v, closer, err := db.Get([]byte("system:" + key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	defer closer.Close()
	return string(append([]byte(nil), v...)), nil
}

// SaveSystemKey writes a system record.
func SaveSystemKey(key string, val []byte) error {
	if db == nil {
		return notOpen()
	}
	return db.Set([]byte("system:"+key), val, pebble.Sync)
}

// DeleteSystemKey removes a system record.
func DeleteSystemKey(key string) error {
	if db == nil {
		return notOpen()
	}
	return db.Delete([]byte("system:"+key), pebble.Sync)
}

// SweepSessions deletes every session whose expiry is at or before now
// and returns how many were removed. Records that fail to decode are
// removed too, since they can never verify.
func SweepSessions(now int64) (int, error) {
	if db == nil {
		return 0, notOpen()
	}
	prefix := []byte("session:")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return 0, err
	}
	defer iter.Close()
	var stale [][]byte
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var s models.Session
		if err := json.Unmarshal(iter.Value(), &s); err != nil || s.ExpiresTS <= now {
			stale = append(stale, append([]byte(nil), iter.Key()...))
		}
	}
	removed := 0
	for _, k := range stale {
		if err := db.Delete(k, pebble.Sync); err != nil {
			logger.Error("sweep_session_delete_failed", "key", string(k), "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}

// IsNotFound reports whether err is the store's missing-record error.
func IsNotFound(err error) bool {
	return errors.Is(err, pebble.ErrNotFound)
}
