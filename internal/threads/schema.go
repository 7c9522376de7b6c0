package threads

import "time"

// Thread is one conversation.
type Thread struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is one append-only chat entry.
type Message struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	Role      string    `json:"role"` // user, assistant
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Schema is applied on every open. created_at holds unix milliseconds so
// ordering is identical under both sqlite drivers.
const Schema = `
CREATE TABLE IF NOT EXISTS threads (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	thread_id TEXT NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	FOREIGN KEY (thread_id) REFERENCES threads(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_messages_thread ON messages(thread_id, created_at);
`

// DefaultTitle is used when the first message carries no text.
const DefaultTitle = "New Chat"

const titleLimit = 30

// TitleFrom derives a thread title from the first 30 characters of text.
func TitleFrom(text string) string {
	r := []rune(text)
	if len(r) == 0 {
		return DefaultTitle
	}
	if len(r) > titleLimit {
		r = r[:titleLimit]
	}
	return string(r)
}
