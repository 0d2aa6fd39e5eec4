package models

// User is created on first sign-in and never explicitly deleted.
type User struct {
	Email     string `json:"email"`
	Name      string `json:"name,omitempty"`
	Avatar    string `json:"avatar,omitempty"`
	CreatedTS int64  `json:"created_ts,omitempty"`
}

// Session is a signed, persisted login session. Owner is the user email
// used to address the user's subtree of threads and messages.
type Session struct {
	ID        string `json:"id"`
	Owner     string `json:"owner"`
	CreatedTS int64  `json:"created_ts"`
	ExpiresTS int64  `json:"expires_ts"`
}
