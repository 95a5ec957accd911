package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/zulandar/momotalk/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ConversationData holds the fields for creating a conversation. ID and
// Title are optional: a random uuid and the student's name are used when
// they are empty.
type ConversationData struct {
	ID          string
	Title       string
	StudentName string
}

// ConversationUpdate holds the mutable conversation fields. Nil fields are
// left unchanged.
type ConversationUpdate struct {
	Title *string
}

// ListConversations returns every conversation with its student, most
// recently updated first.
func (s *Store) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	var convs []models.Conversation
	err := s.db.WithContext(ctx).
		Preload("Student").
		Order(clause.OrderByColumn{Column: clause.Column{Name: "updated_at"}, Desc: true}).
		Order("id").
		Find(&convs).Error
	if err != nil {
		return nil, wrap("list conversations", err)
	}
	return convs, nil
}

// FindConversation returns the conversation with its student.
func (s *Store) FindConversation(ctx context.Context, id string) (*models.Conversation, error) {
	return findConversation(s.db.WithContext(ctx), id)
}

func findConversation(tx *gorm.DB, id string) (*models.Conversation, error) {
	var conv models.Conversation
	err := tx.Preload("Student").Where("id = ?", id).Take(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("conversation", id)
	}
	if err != nil {
		return nil, wrap("find conversation", err)
	}
	return &conv, nil
}

// CreateConversation inserts a conversation for an existing student.
func (s *Store) CreateConversation(ctx context.Context, data ConversationData) (*models.Conversation, error) {
	if data.StudentName == "" {
		return nil, invalid("student name is required")
	}
	id := data.ID
	if id == "" {
		id = uuid.NewString()
	} else if _, err := uuid.Parse(id); err != nil {
		return nil, invalid("conversation id %q is not a uuid", id)
	}

	var conv *models.Conversation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var st models.Student
		err := tx.Where("name = ?", data.StudentName).Take(&st).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound("student", data.StudentName)
		}
		if err != nil {
			return err
		}

		title := data.Title
		if title == "" {
			title = st.Name
		}
		c := models.Conversation{ID: id, Title: title, StudentName: st.Name}
		if err := tx.Create(&c).Error; err != nil {
			return err
		}
		c.Student = &st
		conv = &c
		return nil
	})
	if err != nil {
		return nil, wrap("create conversation", err)
	}
	return conv, nil
}

// UpdateConversation applies upd and bumps updated_at.
func (s *Store) UpdateConversation(ctx context.Context, id string, upd ConversationUpdate) (*models.Conversation, error) {
	var conv *models.Conversation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := findConversation(tx, id)
		if err != nil {
			return err
		}
		fields := map[string]interface{}{"updated_at": time.Now()}
		if upd.Title != nil {
			fields["title"] = *upd.Title
		}
		if err := tx.Model(&models.Conversation{}).Where("id = ?", id).Updates(fields).Error; err != nil {
			return err
		}
		conv, err = findConversation(tx, c.ID)
		return err
	})
	if err != nil {
		return nil, wrap("update conversation", err)
	}
	return conv, nil
}

// DeleteConversation removes a conversation and its messages and returns
// the deleted conversation.
func (s *Store) DeleteConversation(ctx context.Context, id string) (*models.Conversation, error) {
	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var conv *models.Conversation
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := findConversation(tx, id)
		if err != nil {
			return err
		}
		if err := tx.Where("conversation_id = ?", id).Delete(&models.Message{}).Error; err != nil {
			return err
		}
		if err := tx.Where("id = ?", id).Delete(&models.Conversation{}).Error; err != nil {
			return err
		}
		conv = c
		return nil
	})
	if err != nil {
		return nil, wrap("delete conversation", err)
	}
	return conv, nil
}
