// Package roster downloads the student list used to seed personas and keeps
// the local students and their conversations in sync with it.
package roster

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/zulandar/momotalk/internal/db"
	"github.com/zulandar/momotalk/internal/models"
	"gorm.io/gorm"
)

// Opts configures Fetch and Sync.
type Opts struct {
	URL        string
	AvatarURL  string // "{{id}}" is replaced with the roster id
	HTTPClient *http.Client
}

// Result summarizes a Sync.
type Result struct {
	Fetched       int
	Created       int
	Updated       int
	Conversations int
}

type rosterResponse struct {
	Data []rosterEntry `json:"data"`
}

type rosterEntry struct {
	ID           json.Number `json:"Id"`
	PersonalName string      `json:"PersonalName"`
}

// DefaultPrompt returns the persona prompt given to a newly seeded student.
func DefaultPrompt(name string) string {
	return fmt.Sprintf("你是来自蔚蓝档案的学生%s，你应该表现得符合角色特性。\n"+
		"你需要保持角色的一致性，友好地与用户交流。\n"+
		"在对话中要展现出%s的性格特点和说话方式。\n"+
		"请记住，你是在与用户私聊，要有亲切感。", name, name)
}

// AvatarURL expands the avatar template for one roster id.
func AvatarURL(template, id string) string {
	return strings.ReplaceAll(template, "{{id}}", id)
}

// Fetch downloads the roster and maps each entry to a Student with one
// avatar and the default prompt. Entries without a name are skipped.
func Fetch(ctx context.Context, opts Opts) ([]models.Student, error) {
	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, opts.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("roster: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("roster: fetch %s: %w", opts.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("roster: fetch %s: status %d: %s", opts.URL, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed rosterResponse
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&parsed); err != nil {
		return nil, fmt.Errorf("roster: parse response: %w", err)
	}

	students := make([]models.Student, 0, len(parsed.Data))
	for _, e := range parsed.Data {
		name := strings.TrimSpace(e.PersonalName)
		if name == "" {
			continue
		}
		id := e.ID.String()
		if n, err := strconv.ParseUint(id, 10, 64); err == nil {
			id = strconv.FormatUint(n, 10)
		}
		avatars, err := json.Marshal([]string{AvatarURL(opts.AvatarURL, id)})
		if err != nil {
			return nil, fmt.Errorf("roster: encode avatars for %q: %w", name, err)
		}
		students = append(students, models.Student{
			Name:    name,
			Avatars: string(avatars),
			Prompt:  DefaultPrompt(name),
		})
	}
	return students, nil
}

// Sync fetches the roster, upserts students, and creates a conversation for
// every student that has none.
func Sync(ctx context.Context, gdb *gorm.DB, opts Opts) (Result, error) {
	students, err := Fetch(ctx, opts)
	if err != nil {
		return Result{}, err
	}

	res := Result{Fetched: len(students)}
	seeded, err := db.SeedStudents(gdb.WithContext(ctx), students)
	if err != nil {
		return res, fmt.Errorf("roster: sync: %w", err)
	}
	res.Created = seeded.Created
	res.Updated = seeded.Updated

	n, err := db.EnsureConversations(gdb.WithContext(ctx))
	if err != nil {
		return res, fmt.Errorf("roster: sync: %w", err)
	}
	res.Conversations = n

	log.Info().
		Int("fetched", res.Fetched).
		Int("created", res.Created).
		Int("updated", res.Updated).
		Int("conversations", res.Conversations).
		Msg("roster synced")
	return res, nil
}
