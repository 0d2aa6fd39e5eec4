package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"gptchat/pkg/models"
)

// Rules bounds user-supplied input. Zero values mean "no limit".
type Rules struct {
	MaxPromptLen int
	MaxTitleLen  int
}

var rules Rules

// SetRules installs the active rule set; called once during startup.
func SetRules(r Rules) { rules = r }

var (
	ErrBlankPrompt = errors.New("prompt required")
	ErrBlankTitle  = errors.New("title required")
)

// ValidatePrompt checks trimmed user text against the configured bound.
func ValidatePrompt(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrBlankPrompt
	}
	if rules.MaxPromptLen > 0 && utf8.RuneCountInString(text) > rules.MaxPromptLen {
		return fmt.Errorf("prompt too long: %d > %d", utf8.RuneCountInString(text), rules.MaxPromptLen)
	}
	return nil
}

// ValidateTitle checks a thread title against the configured bound.
func ValidateTitle(title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrBlankTitle
	}
	if rules.MaxTitleLen > 0 && utf8.RuneCountInString(title) > rules.MaxTitleLen {
		return fmt.Errorf("title too long: %d > %d", utf8.RuneCountInString(title), rules.MaxTitleLen)
	}
	return nil
}

// ValidateModel checks the model selector against the known set. Empty
// is allowed and means the default model.
func ValidateModel(model string) error {
	if model == "" {
		return nil
	}
	if !models.KnownModel(model) {
		return fmt.Errorf("unknown model %q, expected one of %s", model, strings.Join(models.Models, ", "))
	}
	return nil
}
