package chat

import (
	"context"
	"strings"
	"time"

	"gptchat/pkg/logger"
	"gptchat/pkg/metrics"
	"gptchat/pkg/models"
	"gptchat/pkg/relay"
	"gptchat/pkg/store"
	"gptchat/pkg/telemetry"
	"gptchat/pkg/utils"
)

// Composer implements the send flow: persist the human message, write a
// pending assistant placeholder, then hand the prompt to the relay. The
// human message is durably stored before the upstream call is issued so
// a completion failure never loses the user's input.
type Composer struct {
	relay *relay.Relay
}

func NewComposer(rl *relay.Relay) *Composer {
	return &Composer{relay: rl}
}

// SendResult reports what one Send call produced.
type SendResult struct {
	// NoOp is true when the input was blank and nothing was written.
	NoOp bool
	// ThreadID is the target thread; freshly generated when Send had to
	// create one.
	ThreadID      string
	ThreadCreated bool
	MessageID     string
	PlaceholderID string
	Relay         relay.Result
}

// Send appends trimmed user text to the thread and drives a completion
// for it. An empty threadID creates a new thread first; the generated id
// is committed before any message is written into it. Blank input is a
// no-op, not an error.
func (c *Composer) Send(ctx context.Context, owner, threadID, text, model string) (SendResult, error) {
	span := telemetry.StartSpan(ctx, "chat.send")
	defer span()

	text = strings.TrimSpace(text)
	if text == "" {
		return SendResult{NoOp: true, ThreadID: threadID}, nil
	}

	var res SendResult
	if threadID == "" {
		t := models.Thread{
			ID:        utils.GenThreadID(),
			Owner:     owner,
			Model:     model,
			CreatedTS: time.Now().UnixNano(),
		}
		if err := store.SaveThread(owner, t.ID, t); err != nil {
			return res, err
		}
		threadID = t.ID
		res.ThreadCreated = true
		logger.Info("thread_created", "owner", owner, "thread", threadID)
	} else if model == "" {
		// fall back to the thread's configured model
		if t, err := store.GetThread(owner, threadID); err == nil {
			model = t.EffectiveModel()
		}
	}
	res.ThreadID = threadID

	human := models.Message{
		ID:     utils.GenID(),
		Thread: threadID,
		Text:   text,
		TS:     time.Now().UnixNano(),
		User:   authorFor(owner),
	}
	if err := store.SaveMessage(owner, threadID, human); err != nil {
		return res, err
	}
	metrics.MessagesSaved.WithLabelValues("human").Inc()
	res.MessageID = human.ID

	placeholder := models.Message{
		ID:        utils.GenID(),
		Thread:    threadID,
		Text:      "",
		IsLoading: true,
		TS:        time.Now().UnixNano(),
		User:      models.Assistant,
	}
	if err := store.SaveMessage(owner, threadID, placeholder); err != nil {
		// the human message is already durable; surface the failure
		// without calling upstream
		return res, err
	}
	res.PlaceholderID = placeholder.ID

	res.Relay = c.relay.Complete(ctx, relay.Request{
		Owner:         owner,
		ThreadID:      threadID,
		Prompt:        text,
		Model:         model,
		PlaceholderID: placeholder.ID,
	})
	return res, nil
}

// authorFor builds the message author descriptor for a user, preferring
// the stored profile when one exists.
func authorFor(owner string) models.Author {
	a := models.Author{ID: owner, Name: owner}
	if u, err := store.GetUser(owner); err == nil {
		if u.Name != "" {
			a.Name = u.Name
		}
		a.Avatar = u.Avatar
	}
	return a
}
