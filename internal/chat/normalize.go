package chat

import "github.com/zulandar/momotalk/internal/models"

// Normalize builds the turn list sent to the completion endpoint from the
// stored history (ascending index) and the incoming turn. It never touches
// storage and does not modify history.
//
// When the incoming turn is from the user, trailing user turns in history
// are folded into it, newline-joined in order. The resulting list is then
// collapsed so no two adjacent turns share a role; collapsed contents are
// joined with a blank line.
func Normalize(history []models.Message, incoming models.Turn) []models.Turn {
	cut := len(history)
	content := incoming.Content
	if incoming.Role == models.RoleUser {
		for cut > 0 && history[cut-1].Role == models.RoleUser {
			cut--
			content = history[cut].Content + "\n" + content
		}
	}

	raw := make([]models.Turn, 0, cut+1)
	for _, m := range history[:cut] {
		raw = append(raw, m.Turn())
	}
	raw = append(raw, models.Turn{Role: incoming.Role, Content: content})

	return mergeAdjacent(raw)
}

// mergeAdjacent collapses runs of same-role turns into one.
func mergeAdjacent(turns []models.Turn) []models.Turn {
	out := make([]models.Turn, 0, len(turns))
	for _, t := range turns {
		if n := len(out); n > 0 && out[n-1].Role == t.Role {
			out[n-1].Content += "\n\n" + t.Content
			continue
		}
		out = append(out, t)
	}
	return out
}
