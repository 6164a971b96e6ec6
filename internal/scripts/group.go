package scripts

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"mltscript/internal/timestamp"
)

// UntitledKey groups rows whose key resolves to an empty string.
const UntitledKey = "Untitled"

// KeyFunc derives the grouping key for a candidate row.
type KeyFunc func(Candidate) string

// ByDescription groups rows sharing a scene description.
func ByDescription(c Candidate) string {
	return strings.TrimSpace(c.Description)
}

// ByTimestamp groups rows sharing the same raw timestamp text.
func ByTimestamp(c Candidate) string {
	return strings.TrimSpace(c.TimestampString)
}

// ByTimestampBucket groups rows into fixed-width time windows labelled
// "M:SS-M:SS". Widths below one second fall back to one minute.
func ByTimestampBucket(width time.Duration) KeyFunc {
	seconds := int(width / time.Second)
	if seconds <= 0 {
		seconds = 60
	}
	return func(c Candidate) string {
		start := c.Timestamp.TotalSeconds() / seconds * seconds
		return timestamp.FormatMinutes(start) + "-" + timestamp.FormatMinutes(start+seconds)
	}
}

// GroupOptions controls how candidates become scripts.
type GroupOptions struct {
	Key KeyFunc
	// Title maps a group key to a script title; nil uses the key itself.
	Title func(key string) string
	// Source, SheetID, and Tab scope the deterministic script IDs and tags.
	Source  string
	SheetID string
	Tab     string
	Status  Status
	Now     func() time.Time
}

var idNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("mltscript:scripts"))

type groupRow struct {
	key string
	row int
}

// Group partitions candidates by key into scripts. Partitions keep the order
// in which their keys first appear; scenes inside a partition follow the
// original row order and are numbered from 1. A repeated (key, row) pair keeps
// the first occurrence. Scripts are never empty.
func Group(candidates []Candidate, opts GroupOptions) []Script {
	if len(candidates) == 0 {
		return nil
	}
	key := opts.Key
	if key == nil {
		key = ByDescription
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	status := opts.Status
	if status == "" {
		status = StatusDraft
	}
	stamp := now().UTC().Format(time.RFC3339)

	var order []string
	groups := make(map[string][]Candidate)
	seen := make(map[groupRow]struct{}, len(candidates))
	for _, c := range candidates {
		k := strings.TrimSpace(key(c))
		if k == "" {
			k = UntitledKey
		}
		id := groupRow{key: k, row: c.Row}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], c)
	}

	out := make([]Script, 0, len(order))
	for _, k := range order {
		members := groups[k]
		if len(members) == 0 {
			continue
		}
		sort.SliceStable(members, func(i, j int) bool { return members[i].Row < members[j].Row })
		out = append(out, buildScript(k, members, opts, status, stamp))
	}
	return out
}

func buildScript(key string, members []Candidate, opts GroupOptions, status Status, stamp string) Script {
	scriptID := uuid.NewSHA1(idNamespace, []byte(opts.SheetID+"/"+opts.Tab+"/"+key))

	title := key
	if opts.Title != nil {
		if t := strings.TrimSpace(opts.Title(key)); t != "" {
			title = t
		}
	}

	scenes := make([]Scene, 0, len(members))
	tags := []string{opts.Source, opts.Tab}
	var description string
	for i, c := range members {
		scenes = append(scenes, Scene{
			ID:              uuid.NewSHA1(scriptID, []byte(strconv.Itoa(c.Row))).String(),
			Timestamp:       c.Timestamp,
			TimestampString: c.TimestampString,
			Content:         c.Content,
			Description:     c.Description,
			Speaker:         c.Speaker,
			Action:          c.Action,
			Notes:           c.Notes,
			DurationSeconds: c.DurationSeconds,
			SceneNumber:     i + 1,
		})
		if c.Speaker != "" {
			tags = append(tags, c.Speaker)
		}
		if description == "" && c.Description != "" && c.Description != title {
			description = c.Description
		}
	}
	if description == "" {
		description = fmt.Sprintf("%d scenes", len(scenes))
	}

	last := scenes[len(scenes)-1]
	return Script{
		ID:            scriptID.String(),
		Title:         title,
		Description:   description,
		TotalDuration: timestamp.FormatMinutes(last.Timestamp.TotalSeconds()),
		Scenes:        scenes,
		CreatedAt:     stamp,
		UpdatedAt:     stamp,
		Status:        status,
		Tags:          TagSet(tags...),
	}
}
