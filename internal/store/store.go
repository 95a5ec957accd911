// Package store is the transcript store: CRUD over students, conversations,
// and messages on GORM, with per-conversation ordered message indices.
package store

import (
	"context"
	"errors"

	"github.com/zulandar/momotalk/internal/keylock"
	"github.com/zulandar/momotalk/internal/models"
	"gorm.io/gorm"
)

// Store wraps a GORM connection. It is safe for concurrent use.
type Store struct {
	db    *gorm.DB
	locks *keylock.Map
}

// New creates a Store over db. The schema must already be migrated.
func New(db *gorm.DB) *Store {
	return &Store{db: db, locks: keylock.New()}
}

// DB returns the underlying connection.
func (s *Store) DB() *gorm.DB { return s.db }

// ListStudents returns all students ordered by id.
func (s *Store) ListStudents(ctx context.Context) ([]models.Student, error) {
	var students []models.Student
	if err := s.db.WithContext(ctx).Order("id").Find(&students).Error; err != nil {
		return nil, wrap("list students", err)
	}
	return students, nil
}

// FindStudent returns the student with the given name.
func (s *Store) FindStudent(ctx context.Context, name string) (*models.Student, error) {
	var st models.Student
	err := s.db.WithContext(ctx).Where("name = ?", name).Take(&st).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("student", name)
	}
	if err != nil {
		return nil, wrap("find student", err)
	}
	return &st, nil
}
