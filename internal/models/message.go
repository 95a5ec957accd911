package models

import "time"

// Message is one stored turn of a conversation. Index defines transcript
// order and is unique within a conversation.
type Message struct {
	ID             uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationID string    `gorm:"size:36;not null;index;uniqueIndex:idx_message_conversation_index,priority:1" json:"conversation_id"`
	Role           Role      `gorm:"size:16;not null" json:"role"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	Name           string    `gorm:"size:64" json:"name,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	Index          int       `gorm:"column:index;not null;uniqueIndex:idx_message_conversation_index,priority:2" json:"index"`
}

// Turn is a role/content pair as exchanged with the completion endpoint.
// Turns are built per exchange and never persisted.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Turn returns the role/content view of a stored message.
func (m Message) Turn() Turn {
	return Turn{Role: m.Role, Content: m.Content}
}
