package missive

// SharedLabel is one entry of the Missive shared-label taxonomy.
type SharedLabel struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	NameWithParentNames string `json:"name_with_parent_names"`
}

type sharedLabelsResponse struct {
	SharedLabels []SharedLabel `json:"shared_labels"`
}

// Conversation is the raw Missive conversation record. Only the fields
// the portal projects are decoded.
type Conversation struct {
	ID                   string             `json:"id"`
	Subject              string             `json:"subject"`
	LatestMessageSubject string             `json:"latest_message_subject"`
	LastActivityAt       int64              `json:"last_activity_at"`
	MessagesCount        int                `json:"messages_count"`
	Users                []ConversationUser `json:"users"`
	Authors              []Contact          `json:"authors"`
}

// ConversationUser carries the per-user conversation state; the first
// entry's closed flag is what the portal reports.
type ConversationUser struct {
	Closed bool `json:"closed"`
}

// Contact is a message or conversation participant.
type Contact struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

type conversationsResponse struct {
	Conversations []Conversation `json:"conversations"`
}

// Message is the raw Missive message record.
type Message struct {
	ID          string      `json:"id"`
	Subject     string      `json:"subject"`
	Preview     string      `json:"preview"`
	Body        MessageBody `json:"body"`
	DeliveredAt int64       `json:"delivered_at"`
	From        *Contact    `json:"from_field"`
}

// MessageBody holds the message content variants.
type MessageBody struct {
	Plain string `json:"plain"`
	HTML  string `json:"html"`
}

type messagesResponse struct {
	Messages []Message `json:"messages"`
}
