package db

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/zulandar/momotalk/internal/models"
	"gorm.io/gorm"
)

// AllModels returns the list of all GORM models for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.Student{},
		&models.Conversation{},
		&models.Message{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// SeedResult counts the rows touched by SeedStudents.
type SeedResult struct {
	Created int
	Updated int
}

// SeedStudents upserts students by name. Existing rows keep their prompt and
// gain any avatar URLs they do not already list; new rows are created as
// given.
func SeedStudents(db *gorm.DB, students []models.Student) (SeedResult, error) {
	var res SeedResult
	err := db.Transaction(func(tx *gorm.DB) error {
		for _, s := range students {
			if s.Name == "" {
				continue
			}

			var existing models.Student
			err := tx.Where("name = ?", s.Name).First(&existing).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				if s.Avatars == "" {
					s.Avatars = "[]"
				}
				s.ID = 0
				if err := tx.Create(&s).Error; err != nil {
					return fmt.Errorf("db: seed student %q: %w", s.Name, err)
				}
				res.Created++
				continue
			}
			if err != nil {
				return fmt.Errorf("db: find student %q: %w", s.Name, err)
			}

			merged, changed, err := MergeAvatars(existing.Avatars, s.Avatars)
			if err != nil {
				return fmt.Errorf("db: merge avatars for %q: %w", s.Name, err)
			}
			if !changed {
				continue
			}
			if err := tx.Model(&existing).Update("avatars", merged).Error; err != nil {
				return fmt.Errorf("db: update student %q: %w", s.Name, err)
			}
			res.Updated++
		}
		return nil
	})
	return res, err
}

// EnsureConversations creates one conversation, titled after the student,
// for every student that has none. It returns the number created.
func EnsureConversations(db *gorm.DB) (int, error) {
	var students []models.Student
	err := db.Where("name NOT IN (?)",
		db.Model(&models.Conversation{}).Select("student_name"),
	).Order("id").Find(&students).Error
	if err != nil {
		return 0, fmt.Errorf("db: list students without conversations: %w", err)
	}

	for _, s := range students {
		conv := models.Conversation{
			ID:          uuid.NewString(),
			Title:       s.Name,
			StudentName: s.Name,
		}
		if err := db.Create(&conv).Error; err != nil {
			return 0, fmt.Errorf("db: create conversation for %q: %w", s.Name, err)
		}
	}
	return len(students), nil
}

// MergeAvatars appends the URLs in incoming that current does not already
// contain. Both arguments are JSON arrays of strings; a non-JSON current value
// is treated as a single URL. It reports whether anything was added.
func MergeAvatars(current, incoming string) (string, bool, error) {
	have := decodeAvatars(current)
	var add []string
	if incoming != "" {
		if err := json.Unmarshal([]byte(incoming), &add); err != nil {
			return "", false, fmt.Errorf("incoming avatars: %w", err)
		}
	}

	seen := make(map[string]bool, len(have))
	for _, a := range have {
		seen[a] = true
	}
	changed := false
	for _, a := range add {
		if a == "" || seen[a] {
			continue
		}
		have = append(have, a)
		seen[a] = true
		changed = true
	}
	if !changed && current != "" {
		if _, err := parseAvatars(current); err == nil {
			return current, false, nil
		}
	}

	out, err := marshalJSON(have)
	if err != nil {
		return "", false, err
	}
	return out, changed || out != current, nil
}

func decodeAvatars(s string) []string {
	if s == "" {
		return []string{}
	}
	list, err := parseAvatars(s)
	if err != nil {
		return []string{s}
	}
	return list
}

func parseAvatars(s string) ([]string, error) {
	var list []string
	if err := json.Unmarshal([]byte(s), &list); err != nil {
		return nil, err
	}
	if list == nil {
		list = []string{}
	}
	return list, nil
}

// marshalJSON marshals a value to a JSON string, returning empty string for nil.
func marshalJSON(v interface{}) (string, error) {
	if v == nil {
		return "", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
