package validation_test

import (
	"errors"
	"strings"
	"testing"

	"gptchat/pkg/models"
	"gptchat/pkg/validation"
)

func TestValidatePrompt(t *testing.T) {
	validation.SetRules(validation.Rules{MaxPromptLen: 10})
	defer validation.SetRules(validation.Rules{})

	if err := validation.ValidatePrompt("hello"); err != nil {
		t.Fatalf("valid prompt rejected: %v", err)
	}
	if err := validation.ValidatePrompt("   "); !errors.Is(err, validation.ErrBlankPrompt) {
		t.Fatalf("expected ErrBlankPrompt, got %v", err)
	}
	if err := validation.ValidatePrompt(strings.Repeat("x", 11)); err == nil {
		t.Fatalf("expected length error for long prompt")
	}
	// bound counts runes, not bytes
	if err := validation.ValidatePrompt(strings.Repeat("é", 10)); err != nil {
		t.Fatalf("10-rune prompt rejected: %v", err)
	}
}

func TestValidatePromptUnlimitedByDefault(t *testing.T) {
	validation.SetRules(validation.Rules{})
	if err := validation.ValidatePrompt(strings.Repeat("x", 100000)); err != nil {
		t.Fatalf("unbounded rules rejected prompt: %v", err)
	}
}

func TestValidateTitle(t *testing.T) {
	validation.SetRules(validation.Rules{MaxTitleLen: 5})
	defer validation.SetRules(validation.Rules{})

	if err := validation.ValidateTitle(" Trip "); err != nil {
		t.Fatalf("valid title rejected: %v", err)
	}
	if err := validation.ValidateTitle(""); !errors.Is(err, validation.ErrBlankTitle) {
		t.Fatalf("expected ErrBlankTitle, got %v", err)
	}
	if err := validation.ValidateTitle("toolong"); err == nil {
		t.Fatalf("expected length error for long title")
	}
}

func TestValidateModel(t *testing.T) {
	if err := validation.ValidateModel(""); err != nil {
		t.Fatalf("empty model should mean default: %v", err)
	}
	if err := validation.ValidateModel(models.DefaultModel); err != nil {
		t.Fatalf("default model rejected: %v", err)
	}
	if err := validation.ValidateModel("gpt-1-beta"); err == nil {
		t.Fatalf("expected error for unknown model")
	}
}
