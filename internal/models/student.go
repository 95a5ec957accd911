package models

// Student is a persona a conversation is held with. Prompt is the system
// prompt that establishes the assistant's behavior.
type Student struct {
	ID      uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Name    string `gorm:"size:128;not null;uniqueIndex" json:"name"`
	Avatars string `gorm:"type:text" json:"avatars"` // JSON array of URLs
	Prompt  string `gorm:"type:text" json:"prompt"`
}
