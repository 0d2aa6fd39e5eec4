package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"gptchat/pkg/logger"
	"gptchat/pkg/metrics"
	"gptchat/pkg/models"
	"gptchat/pkg/store"
	"gptchat/pkg/utils"
)

var (
	ErrEmptyTitle   = errors.New("title required")
	ErrUnknownModel = errors.New("unknown model")
)

// deleteThreadFn is swappable in tests to exercise partial bulk-delete
// failures.
var deleteThreadFn = store.DeleteThread

// Rename sets a thread's title. Empty titles are rejected before any
// store write so the previous title is preserved.
func Rename(owner, threadID, title string) (models.Thread, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return models.Thread{}, ErrEmptyTitle
	}
	t, err := store.GetThread(owner, threadID)
	if err != nil {
		return models.Thread{}, err
	}
	t.Title = title
	t.Slug = utils.MakeSlug(title, t.ID)
	t.UpdatedTS = time.Now().UnixNano()
	if err := store.SaveThread(owner, threadID, t); err != nil {
		return models.Thread{}, err
	}
	return t, nil
}

// SetModel selects a thread's completion model. Repeating the same model
// leaves the thread unchanged.
func SetModel(owner, threadID, model string) (models.Thread, error) {
	if !models.KnownModel(model) {
		return models.Thread{}, ErrUnknownModel
	}
	t, err := store.GetThread(owner, threadID)
	if err != nil {
		return models.Thread{}, err
	}
	if t.Model == model {
		return t, nil
	}
	t.Model = model
	t.UpdatedTS = time.Now().UnixNano()
	if err := store.SaveThread(owner, threadID, t); err != nil {
		return models.Thread{}, err
	}
	return t, nil
}

// DeleteThread removes one thread with all its messages and returns the
// id of the most recently created remaining thread, so a caller viewing
// the deleted thread knows where to navigate. Empty means no threads
// remain.
func DeleteThread(owner, threadID string) (string, error) {
	if err := store.DeleteThread(owner, threadID); err != nil {
		return "", err
	}
	metrics.ThreadsDeleted.Inc()
	remaining, err := store.ListThreads(owner)
	if err != nil {
		// the delete itself succeeded; the navigation hint is best effort
		logger.Warn("list_after_delete_failed", "owner", owner, "err", err.Error())
		return "", nil
	}
	if len(remaining) == 0 {
		return "", nil
	}
	next := remaining[0]
	for _, t := range remaining[1:] {
		if t.CreatedTS > next.CreatedTS {
			next = t
		}
	}
	return next.ID, nil
}

// DeleteAllThreads deletes every thread the owner has, fanning the
// deletes out concurrently and joining on all of them. Any single
// failure makes the whole call fail even though the other deletes went
// through; there is no rollback of the ones that succeeded.
func DeleteAllThreads(ctx context.Context, owner string) (int, error) {
	threads, err := store.ListThreads(owner)
	if err != nil {
		return 0, err
	}
	g, _ := errgroup.WithContext(ctx)
	for _, t := range threads {
		id := t.ID
		g.Go(func() error {
			if err := deleteThreadFn(owner, id); err != nil {
				return fmt.Errorf("delete thread %s: %w", id, err)
			}
			metrics.ThreadsDeleted.Inc()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("bulk_delete_partial_failure", "owner", owner, "err", err.Error())
		return len(threads), err
	}
	return len(threads), nil
}
