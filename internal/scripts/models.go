package scripts

import (
	"sort"
	"strings"

	"mltscript/internal/timestamp"
)

// Status tags a script's editorial state. Unknown values pass through.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusPublished  Status = "published"
	StatusArchived   Status = "archived"
)

// Scene is one timestamped line of a script.
type Scene struct {
	ID              string              `json:"id"`
	Timestamp       timestamp.Timestamp `json:"timestamp"`
	TimestampString string              `json:"timestampString"`
	Content         string              `json:"content"`
	Description     string              `json:"description,omitempty"`
	Speaker         string              `json:"speaker,omitempty"`
	Action          string              `json:"action,omitempty"`
	Notes           string              `json:"notes,omitempty"`
	DurationSeconds int                 `json:"duration,omitempty"`
	SceneNumber     int                 `json:"sceneNumber"`
}

// Script is an ordered collection of scenes sharing a grouping key.
type Script struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Description   string   `json:"description,omitempty"`
	TotalDuration string   `json:"totalDuration"`
	Scenes        []Scene  `json:"scenes"`
	// CreatedAt is the first load that produced this ID; UpdatedAt is the
	// load that produced this value. Group stamps both with the load time
	// and the ingest service restores CreatedAt from earlier loads.
	CreatedAt     string   `json:"createdAt"`
	UpdatedAt     string   `json:"updatedAt"`
	Status        Status   `json:"status"`
	Tags          []string `json:"tags"`
}

// SceneCount returns the number of scenes in the script.
func (s Script) SceneCount() int {
	return len(s.Scenes)
}

// Candidate is a decoded row that carries a parsed timestamp and awaits grouping.
type Candidate struct {
	Row             int
	Timestamp       timestamp.Timestamp
	TimestampString string
	Content         string
	Description     string
	Speaker         string
	Action          string
	Notes           string
	DurationSeconds int
	Number          string
}

// TagSet returns sorted, deduplicated, non-empty tags.
func TagSet(tags ...string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		key := strings.ToLower(tag)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

// CountScenes sums scene counts across scripts.
func CountScenes(list []Script) int {
	total := 0
	for _, s := range list {
		total += len(s.Scenes)
	}
	return total
}
