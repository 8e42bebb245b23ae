package classification

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"
)

const promptHeader = `You are a personal productivity assistant that classifies user inputs into structured items.

Your job is to:
1. Identify discrete entries from unstructured text
2. Classify each item into the correct MAIN CATEGORY and SUBCATEGORY
3. Extract deadlines if mentioned
4. Assign appropriate life areas
5. Calculate priority based on urgency and user goals

**Main Categories & Subcategories:**

1. **task**: Actionable items that need to be done
   - Subcategories: obligation (hard deadlines), goal (milestones), habit (recurring), deadline (time-sensitive)

2. **idea**: Creative or future-oriented concepts
   - Subcategories: project (buildable), creative (artistic), improvement (optimization)

3. **thought**: Reflections, learnings, and mental notes
   - Subcategories: reflection (self-insight), learning (knowledge), memory (remember), question (to explore)

**Life Areas:**
career, health, learning, relationships, hobbies, finance, personal

**Priority Scale (1-10):**
- 9-10: Urgent with near deadline (tomorrow, this week)
- 7-8: Important for user's main goals
- 5-6: Moderate importance
- 3-4: Low priority or far future
- 1-2: Ideas and thoughts for later

**Output Format:**
Return JSON: {"items": [{"title": "...", "description": "...", "category": "task|idea|thought", "subcategory": "...", "life_area": "...", "deadline": "YYYY-MM-DDTHH:MM:SS or null", "priority": 1-10}]}

**Guidelines:**
- Extract date/time mentions and convert to ISO format (assume current year if not specified)
- If no specific date, leave deadline as null
- Be generous in extracting items - don't miss anything the user mentioned
- Keep titles concise (under 50 chars), put details in description
- Default to 'task' category if uncertain

---
`

const promptFooter = `Classify this input into structured items. Extract all distinct tasks/ideas/thoughts the user mentioned.
Return ONLY valid JSON with the items array.`

// BuildPrompt renders the full classification instruction for input.
// Goals are listed sorted by area so the prompt is deterministic.
func BuildPrompt(input string, profile Profile, now time.Time) string {
	var b strings.Builder
	b.WriteString(promptHeader)

	fmt.Fprintf(&b, "\n**Today's Date:** %s\n", now.Format("2006-01-02"))

	b.WriteString("\n**User Profile:**\n")
	lifeAreas := "Not specified"
	if len(profile.LifeAreas) > 0 {
		lifeAreas = strings.Join(profile.LifeAreas, ", ")
	}
	fmt.Fprintf(&b, "Life Areas: %s\n", lifeAreas)
	b.WriteString("Goals:\n")
	b.WriteString(goalLines(profile.Goals))

	fmt.Fprintf(&b, "\n\n**User Input:**\n\"%s\"\n\n", input)
	b.WriteString(promptFooter)
	return b.String()
}

func goalLines(goals map[string]string) string {
	if len(goals) == 0 {
		return "  (None specified yet)"
	}
	areas := make([]string, 0, len(goals))
	for area := range goals {
		areas = append(areas, area)
	}
	sort.Strings(areas)

	lines := make([]string, 0, len(areas))
	for _, area := range areas {
		lines = append(lines, fmt.Sprintf("  - %s: %s", capitalize(area), goals[area]))
	}
	return strings.Join(lines, "\n")
}

// capitalize upper-cases the first rune and lower-cases the rest.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(strings.ToLower(s))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
