package store

import (
	"context"
	"errors"
	"time"

	"github.com/zulandar/momotalk/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MessageData holds the fields for inserting a message. When Index is nil
// the message is appended after the last one; otherwise it is placed at
// *Index and any messages at or after that position move up by one.
type MessageData struct {
	ConversationID string
	Role           models.Role
	Content        string
	Name           string
	Index          *int
}

// indexCol is the quoted message order column; "index" is a reserved word
// in both SQLite and MySQL.
var indexCol = clause.Column{Name: "index"}

// ListMessages returns all messages of a conversation in ascending index
// order. A conversation without messages yields an empty slice.
func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	messages := []models.Message{}
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order(clause.OrderByColumn{Column: indexCol}).
		Find(&messages).Error
	if err != nil {
		return nil, wrap("list messages", err)
	}
	return messages, nil
}

// ListMessagesPage returns one page of a conversation's messages in
// ascending index order. page is 0-based; pageSize must be at least 1.
func (s *Store) ListMessagesPage(ctx context.Context, conversationID string, page, pageSize int) ([]models.Message, error) {
	if page < 0 {
		return nil, invalid("page %d must not be negative", page)
	}
	if pageSize < 1 {
		return nil, invalid("page size %d must be at least 1", pageSize)
	}
	messages := []models.Message{}
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order(clause.OrderByColumn{Column: indexCol}).
		Offset(page * pageSize).
		Limit(pageSize).
		Find(&messages).Error
	if err != nil {
		return nil, wrap("list messages page", err)
	}
	return messages, nil
}

// CountMessages returns the number of messages in a conversation.
func (s *Store) CountMessages(ctx context.Context, conversationID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("conversation_id = ?", conversationID).
		Count(&n).Error
	if err != nil {
		return 0, wrap("count messages", err)
	}
	return n, nil
}

// InsertMessage stores a message and returns it with its assigned index.
//
// Index assignment and the insert run in one transaction while holding the
// conversation's lock, so concurrent inserts never share an index. A pinned
// index may be at most one past the current last index, keeping indices
// dense from zero.
func (s *Store) InsertMessage(ctx context.Context, data MessageData) (*models.Message, error) {
	if data.ConversationID == "" {
		return nil, invalid("conversation id is required")
	}
	if data.Role == "" {
		return nil, invalid("role is required")
	}
	if data.Index != nil && *data.Index < 0 {
		return nil, invalid("index %d must not be negative", *data.Index)
	}

	unlock, err := s.locks.Lock(ctx, data.ConversationID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var msg *models.Message
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var conv models.Conversation
		err := tx.Select("id").Where("id = ?", data.ConversationID).Take(&conv).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound("conversation", data.ConversationID)
		}
		if err != nil {
			return err
		}

		next, err := nextIndex(tx, data.ConversationID)
		if err != nil {
			return err
		}

		idx := next
		if data.Index != nil {
			idx = *data.Index
			if idx > next {
				return invalid("index %d leaves a gap (next is %d)", idx, next)
			}
			if idx < next {
				if err := shiftFrom(tx, data.ConversationID, idx); err != nil {
					return err
				}
			}
		}

		m := models.Message{
			ConversationID: data.ConversationID,
			Role:           data.Role,
			Content:        data.Content,
			Name:           data.Name,
			Index:          idx,
		}
		if err := tx.Create(&m).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Conversation{}).
			Where("id = ?", data.ConversationID).
			Update("updated_at", time.Now()).Error; err != nil {
			return err
		}
		msg = &m
		return nil
	})
	if err != nil {
		return nil, wrap("insert message", err)
	}
	return msg, nil
}

// nextIndex returns max(index)+1 for the conversation, or 0 if it has no
// messages.
func nextIndex(tx *gorm.DB, conversationID string) (int, error) {
	var last models.Message
	err := tx.Where("conversation_id = ?", conversationID).
		Order(clause.OrderByColumn{Column: indexCol, Desc: true}).
		Limit(1).
		Take(&last).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return last.Index + 1, nil
}

// shiftFrom moves every message at or after from up by one. The move goes
// through negative values so no intermediate row collides with the
// (conversation_id, index) unique index: i -> -(i+2) -> i+1.
func shiftFrom(tx *gorm.DB, conversationID string, from int) error {
	err := tx.Model(&models.Message{}).
		Where("conversation_id = ? AND ? >= ?", conversationID, indexCol, from).
		Update("index", gorm.Expr("-(? + 2)", indexCol)).Error
	if err != nil {
		return err
	}
	return tx.Model(&models.Message{}).
		Where("conversation_id = ? AND ? < 0", conversationID, indexCol).
		Update("index", gorm.Expr("-? - 1", indexCol)).Error
}
