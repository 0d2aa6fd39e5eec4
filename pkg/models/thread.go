package models

// Known model selector values. A thread with no model set behaves as if
// DefaultModel was chosen.
const (
	ModelGPT4o  = "gpt-4o"
	ModelO3     = "o3"
	ModelO4Mini = "o4-mini"

	DefaultModel = ModelGPT4o
)

// DefaultTitle is shown for threads whose title was never set.
const DefaultTitle = "New Chat"

// Models lists every selectable model value.
var Models = []string{ModelGPT4o, ModelO3, ModelO4Mini}

// KnownModel reports whether m is one of the selectable model values.
func KnownModel(m string) bool {
	for _, v := range Models {
		if v == m {
			return true
		}
	}
	return false
}

// Thread is one conversation: metadata plus an ordered message range in
// the store. Owner is the user email the thread belongs to.
type Thread struct {
	ID    string `json:"id"`
	Owner string `json:"owner"`
	Title string `json:"title,omitempty"`
	// Model is the selected completion model; empty means DefaultModel
	Model string `json:"model,omitempty"`
	// Slug is generated from title and id for human-friendly URLs
	Slug string `json:"slug,omitempty"`
	// Created/Updated timestamps (ns)
	CreatedTS int64 `json:"created_ts,omitempty"`
	UpdatedTS int64 `json:"updated_ts,omitempty"`
}

// EffectiveModel returns the thread's model or DefaultModel when unset.
func (t *Thread) EffectiveModel() string {
	if t.Model == "" {
		return DefaultModel
	}
	return t.Model
}

// DisplayTitle returns the thread's title or DefaultTitle when unset.
func (t *Thread) DisplayTitle() string {
	if t.Title == "" {
		return DefaultTitle
	}
	return t.Title
}
