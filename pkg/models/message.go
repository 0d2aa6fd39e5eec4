package models

// Assistant is the fixed identity attached to model-authored messages.
var Assistant = Author{
	ID:     "ChatGPT",
	Name:   "ChatGPT",
	Avatar: "https://res.cloudinary.com/duehd78sl/image/upload/v1729227742/logoLight_amxdpz.png",
}

// Author describes who wrote a message: either the human user (keyed by
// email) or the fixed assistant identity.
type Author struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// Message belongs to exactly one thread. Text may be empty while the
// message is a pending placeholder awaiting a completion result.
type Message struct {
	ID     string `json:"id"`
	Thread string `json:"thread"`
	Text   string `json:"text"`
	// IsLoading marks a placeholder assistant message whose completion
	// has not arrived yet
	IsLoading bool   `json:"is_loading,omitempty"`
	TS        int64  `json:"ts"`
	User      Author `json:"user"`
}

// FromAssistant reports whether the message carries the assistant identity.
func (m *Message) FromAssistant() bool {
	return m.User.ID == Assistant.ID
}
