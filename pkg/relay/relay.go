package relay

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"gptchat/pkg/config"
	"gptchat/pkg/logger"
	"gptchat/pkg/metrics"
	"gptchat/pkg/models"
	"gptchat/pkg/store"
	"gptchat/pkg/telemetry"
	"gptchat/pkg/utils"
)

// systemPrompt frames every completion request.
const systemPrompt = "You are ChatGPT, a helpful assistant."

// Fallback texts written into the thread instead of surfacing raw
// upstream failures to the user.
const (
	// FallbackEmpty replaces an upstream response with no usable content.
	FallbackEmpty = "ChatGPT was unable to find an answer for that!"
	// fallbackErrFmt wraps the upstream error for the in-thread text.
	fallbackErrFmt = "Chatbot was unable to find an answer for that! (Error: %s)"
	// FallbackDegraded is the best-effort text written when resolving the
	// placeholder with the real answer failed.
	FallbackDegraded = "Sorry, something went wrong. Please try again."
)

// Request carries one completion hop through the relay.
type Request struct {
	Owner         string
	ThreadID      string
	Prompt        string
	Model         string
	PlaceholderID string
}

// Result is the relay's envelope back to the caller. OK is false when
// the upstream call failed or the answer could not be persisted; Answer
// always holds the text the thread ended up with (fallbacks included)
// unless persistence itself failed.
type Result struct {
	Answer string
	OK     bool
}

// Relay forwards prompts to the hosted completion API and writes the
// result back into the thread, resolving the pending placeholder when
// one was supplied.
type Relay struct {
	client      *openai.Client
	maxTokens   int
	temperature float32
	timeout     time.Duration
}

// New builds a relay from the openai section of the config. BaseURL is
// overridable for proxies and tests.
func New(cfg config.OpenAIConfig) *Relay {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1000
	}
	temp := float32(cfg.Temperature)
	if temp <= 0 {
		temp = 0.9
	}
	timeout := cfg.Timeout.Duration()
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Relay{
		client:      openai.NewClientWithConfig(oc),
		maxTokens:   maxTokens,
		temperature: temp,
		timeout:     timeout,
	}
}

// query performs the single upstream hop and returns the raw answer text.
func (rl *Relay) query(ctx context.Context, prompt, model string) (string, error) {
	if model == "" {
		model = models.DefaultModel
	}
	ctx, cancel := context.WithTimeout(ctx, rl.timeout)
	defer cancel()

	start := time.Now()
	resp, err := rl.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature:      rl.temperature,
		TopP:             1,
		MaxTokens:        rl.maxTokens,
		FrequencyPenalty: 0,
		PresencePenalty:  0,
	})
	metrics.CompletionDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Complete runs the full relay flow: call upstream, substitute fallback
// text on failure, then resolve the placeholder (or append a fresh
// assistant message when no placeholder id was supplied). Upstream
// failures never propagate as errors past this boundary; they become
// in-thread fallback text and an OK=false envelope.
func (rl *Relay) Complete(ctx context.Context, req Request) Result {
	span := telemetry.StartSpan(ctx, "relay.complete")
	defer span()

	answer, err := rl.query(ctx, req.Prompt, req.Model)
	upstreamFailed := err != nil
	if upstreamFailed {
		logger.Warn("completion_failed", "thread", req.ThreadID, "model", req.Model, "err", err.Error())
		metrics.Completions.WithLabelValues("error").Inc()
		answer = fmt.Sprintf(fallbackErrFmt, err.Error())
	} else if answer == "" {
		metrics.Completions.WithLabelValues("fallback").Inc()
		answer = FallbackEmpty
	} else {
		metrics.Completions.WithLabelValues("ok").Inc()
	}

	if werr := rl.writeBack(req, answer); werr != nil {
		logger.Error("completion_write_failed", "thread", req.ThreadID, "err", werr.Error())
		// best-effort secondary update so the placeholder does not stay
		// pending forever; when this also fails the degraded state is
		// logged and accepted
		if req.PlaceholderID != "" {
			if serr := rl.writeBack(req, FallbackDegraded); serr != nil {
				logger.Error("placeholder_left_pending", "thread", req.ThreadID, "placeholder", req.PlaceholderID, "err", serr.Error())
			}
		}
		return Result{Answer: answer, OK: false}
	}

	return Result{Answer: answer, OK: !upstreamFailed}
}

// writeBack resolves the placeholder in place, or appends a new
// assistant message for callers that skipped the placeholder step.
func (rl *Relay) writeBack(req Request, text string) error {
	now := time.Now().UnixNano()
	if req.PlaceholderID != "" {
		msg, err := store.GetMessage(req.Owner, req.ThreadID, req.PlaceholderID)
		if err != nil {
			return err
		}
		msg.Text = text
		msg.IsLoading = false
		msg.TS = now
		if err := store.UpdateMessage(req.Owner, req.ThreadID, msg); err != nil {
			return err
		}
		metrics.MessagesSaved.WithLabelValues("assistant").Inc()
		return nil
	}
	msg := models.Message{
		ID:     utils.GenID(),
		Thread: req.ThreadID,
		Text:   text,
		TS:     now,
		User:   models.Assistant,
	}
	if err := store.SaveMessage(req.Owner, req.ThreadID, msg); err != nil {
		return err
	}
	metrics.MessagesSaved.WithLabelValues("assistant").Inc()
	return nil
}
