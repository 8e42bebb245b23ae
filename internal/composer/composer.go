// Package composer renders the assistant's chat reply for a set of
// classified items.
package composer

import (
	"strings"
	"time"

	"github.com/fyrsmithlabs/digitaltwin/internal/classification"
)

// NoItemsReply is returned when nothing could be classified.
const NoItemsReply = "I understood your message, but I couldn't identify any specific tasks or items to track. Could you clarify what you'd like me to help with?"

var categoryEmoji = map[string]string{
	"task":    "✅",
	"idea":    "💡",
	"thought": "💭",
}

// Compose builds the reply text. Items are grouped by category in the order
// categories first appear, and each item may get one follow-up line. The
// input is accepted for symmetry with classification and does not affect
// the output.
func Compose(input string, items []classification.ClassifiedItem, userName string) string {
	if len(items) == 0 {
		return NoItemsReply
	}

	var b strings.Builder
	b.WriteString("Got it")
	if userName != "" {
		b.WriteString(", ")
		b.WriteString(userName)
	}
	b.WriteString("! Let me organize that for you:\n")

	for _, group := range groupByCategory(items) {
		emoji, ok := categoryEmoji[group.category]
		if !ok {
			emoji = "•"
		}
		upper := strings.ToUpper(group.category)

		for _, it := range group.items {
			sub := deref(it.Subcategory)
			deadline := deref(it.Deadline)

			b.WriteString("\n")
			b.WriteString(emoji)
			b.WriteString(" ")
			b.WriteString(upper)
			if sub != "" {
				b.WriteString(" [")
				b.WriteString(sub)
				b.WriteString("]")
			}
			b.WriteString(": ")
			b.WriteString(it.Title)
			if date, ok := displayDate(deadline); ok {
				b.WriteString(" (by ")
				b.WriteString(date)
				b.WriteString(")")
			}

			b.WriteString(followUp(group.category, sub, deadline))
		}
	}
	return b.String()
}

type categoryGroup struct {
	category string
	items    []classification.ClassifiedItem
}

func groupByCategory(items []classification.ClassifiedItem) []*categoryGroup {
	var (
		groups []*categoryGroup
		index  = map[string]*categoryGroup{}
	)
	for _, it := range items {
		g, ok := index[it.Category]
		if !ok {
			g = &categoryGroup{category: it.Category}
			index[it.Category] = g
			groups = append(groups, g)
		}
		g.items = append(g.items, it)
	}
	return groups
}

// followUp returns the contextual line for an item, first matching rule wins.
func followUp(category, subcategory, deadline string) string {
	switch {
	case subcategory == "obligation" && deadline != "":
		return "   → Added to your priorities. Would you like me to help break this down?"
	case subcategory == "habit" || subcategory == "goal":
		return "   → Tracking this for you!"
	case category == "thought":
		return "   → Saved for reflection."
	}
	return ""
}

// displayDate returns the date part of an ISO-8601 deadline. Deadlines
// that do not start with a valid YYYY-MM-DD and do not parse are not shown.
func displayDate(deadline string) (string, bool) {
	runes := []rune(deadline)
	if len(runes) >= 10 {
		prefix := string(runes[:10])
		if _, err := time.Parse("2006-01-02", prefix); err == nil {
			return prefix, true
		}
	}
	if t := classification.ParseDeadline(deadline); t != nil {
		return t.Format("2006-01-02"), true
	}
	return "", false
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
