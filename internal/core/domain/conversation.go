package domain

import "time"

// ChatMessage is a single role-tagged turn supplied by the caller.
// The core holds no durable session state itself; history arrives on
// every request.
type ChatMessage struct {
	// Role is "user" or "assistant".
	Role string `json:"role"`

	// Content is the message text.
	Content string `json:"content"`
}

// Intent is the coarse category assigned to a question.
// Routing is an exact match against the canonical set; anything else
// falls back to IntentGeneralQuestion.
type Intent string

const (
	// IntentGreeting routes to a canned greeting reply.
	IntentGreeting Intent = "Salutations"

	// IntentGeneralQuestion routes to retrieval-grounded generation.
	IntentGeneralQuestion Intent = "Question_Information_Generale"

	// IntentInappropriate routes to a canned deflection reply.
	IntentInappropriate Intent = "Inapproprie"
)

// IntentCategories is the canonical classification vocabulary, in the
// order presented to the classifier model.
var IntentCategories = []Intent{
	IntentGreeting,
	IntentGeneralQuestion,
	IntentInappropriate,
}

// ParseIntent maps a classifier output to a canonical intent.
// Unknown values (typos included) default to IntentGeneralQuestion,
// the safe information-seeking path.
func ParseIntent(s string) Intent {
	for _, c := range IntentCategories {
		if string(c) == s {
			return c
		}
	}
	return IntentGeneralQuestion
}

// SessionMessage is one persisted transcript turn.
type SessionMessage struct {
	// Role is "user" or "assistant".
	Role string `json:"role"`

	// Content is the message text.
	Content string `json:"content"`

	// Timestamp is when the message was recorded.
	Timestamp time.Time `json:"timestamp"`
}

// Session is a persisted conversation transcript.
type Session struct {
	// ID is the session identifier.
	ID string `json:"session_id"`

	// UserEmail identifies the owner.
	UserEmail string `json:"user_email"`

	// Title is a short human-readable label.
	Title string `json:"title"`

	// Messages is the ordered transcript.
	Messages []SessionMessage `json:"messages"`

	// CreatedAt is when the session was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the session was last appended to.
	UpdatedAt time.Time `json:"updated_at"`
}
