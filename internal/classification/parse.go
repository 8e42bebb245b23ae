package classification

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// DefaultPriority is used when the model omits a priority.
const DefaultPriority = 5

type rawReply struct {
	Items []json.RawMessage `json:"items"`
}

// rawItem fields are untyped; a value of the wrong type reads as absent.
type rawItem struct {
	Title       any `json:"title"`
	Category    any `json:"category"`
	Subcategory any `json:"subcategory"`
	LifeArea    any `json:"life_area"`
	Deadline    any `json:"deadline"`
	Priority    any `json:"priority"`
	Description any `json:"description"`
}

// ParseItems decodes a model reply of the form {"items": [...]}. A reply
// wrapped in a markdown code fence is accepted. Entries that are not objects,
// or lack a string title or category, are dropped. Other fields holding a
// value of the wrong type are treated as absent.
func ParseItems(reply string) ([]ClassifiedItem, error) {
	body := stripFence(reply)
	if body == "" {
		return nil, fmt.Errorf("empty model reply")
	}

	var raw rawReply
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return nil, fmt.Errorf("decode model reply: %w", err)
	}

	items := make([]ClassifiedItem, 0, len(raw.Items))
	for _, msg := range raw.Items {
		var r rawItem
		if err := json.Unmarshal(msg, &r); err != nil {
			continue
		}
		title := optional(r.Title)
		category := optional(r.Category)
		if title == nil || category == nil {
			continue
		}
		items = append(items, ClassifiedItem{
			Title:       *title,
			Category:    *category,
			Subcategory: optional(r.Subcategory),
			LifeArea:    optional(r.LifeArea),
			Deadline:    deadlineString(r.Deadline),
			Priority:    priority(r.Priority),
			Description: optional(r.Description),
		})
	}
	return items, nil
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// optional returns the trimmed string held by v, or nil when v is not a
// non-empty string.
func optional(v any) *string {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func deadlineString(v any) *string {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "null") {
		return nil
	}
	return &s
}

// priority reads a numeric or numeric-string priority. Values that do not
// fit in an int32 fall back to DefaultPriority.
func priority(v any) int {
	switch p := v.(type) {
	case float64:
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return DefaultPriority
		}
		p = math.Round(p)
		if p < math.MinInt32 || p > math.MaxInt32 {
			return DefaultPriority
		}
		return int(p)
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(p), 10, 32); err == nil {
			return int(n)
		}
	}
	return DefaultPriority
}

var deadlineLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseDeadline parses an ISO-8601 deadline. Timestamps without a zone are
// taken as UTC. It returns nil for anything it cannot read.
func ParseDeadline(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range deadlineLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
