package models

import "time"

// Conversation groups the messages exchanged with one student persona.
type Conversation struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	Title       string    `gorm:"size:256" json:"title"`
	StudentName string    `gorm:"size:128;not null;index" json:"student_name"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `gorm:"index" json:"updated_at"`

	Student  *Student  `gorm:"foreignKey:StudentName;references:Name;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"student,omitempty"`
	Messages []Message `gorm:"foreignKey:ConversationID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}
