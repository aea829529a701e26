package model

import (
	"strings"
	"unicode/utf8"
)

// TitleMaxRunes bounds the tracker item title derived from an issue description.
const TitleMaxRunes = 256

type Priority string

const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
)

// ParsePriority normalizes free-form priority text. Unknown values map to Medium.
func ParsePriority(s string) Priority {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high", "critical", "p0", "p1":
		return PriorityHigh
	case "low", "minor", "p3":
		return PriorityLow
	default:
		return PriorityMedium
	}
}

// Issue is a candidate unit of tracked work found in logs or drafted by the user.
type Issue struct {
	Description string   `json:"description" jsonschema:"description=Clear concise title describing the issue"`
	Priority    Priority `json:"priority" jsonschema:"enum=High,enum=Medium,enum=Low"`
	Evidence    []string `json:"log_entries" jsonschema:"description=Relevant log lines that show the problem"`
}

// Title is the stable tracker title for the issue: the first 256 characters
// of its description.
func (i Issue) Title() string {
	desc := strings.TrimSpace(i.Description)
	if utf8.RuneCountInString(desc) <= TitleMaxRunes {
		return desc
	}
	return string([]rune(desc)[:TitleMaxRunes])
}

// DraftIssue is issue text the user asked to file, extracted by the router.
type DraftIssue struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// AsIssue turns the draft into an Issue with no log evidence.
func (d DraftIssue) AsIssue() Issue {
	desc := d.Title
	if desc == "" {
		desc = d.Body
	}
	return Issue{Description: desc, Priority: PriorityMedium}
}

type ItemState string

const (
	ItemStateOpen   ItemState = "open"
	ItemStateClosed ItemState = "closed"
)

// TrackedItem is an existing issue on the tracker host.
type TrackedItem struct {
	Number int64     `json:"number"`
	Title  string    `json:"title"`
	State  ItemState `json:"state"`
	Labels []string  `json:"labels,omitempty"`
	URL    string    `json:"url,omitempty"`
}

func (t TrackedItem) HasLabel(name string) bool {
	for _, l := range t.Labels {
		if strings.EqualFold(l, name) {
			return true
		}
	}
	return false
}

// CreatedItem is what the tracker host returns for a newly filed issue.
type CreatedItem struct {
	Number int64  `json:"number"`
	URL    string `json:"url"`
}
