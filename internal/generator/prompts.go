package generator

import (
	"fmt"
	"strings"

	"github.com/course-studio/backend/internal/models"
)

const cardRules = `CARD TYPES:

text
- "body" is Markdown: a short heading, 2-5 short paragraphs or a list, one idea per card
- "question", "options", "answerIndex", "explanation", "optionExplanations", "hint", "text", "answers" and "caseSensitive" are null

quiz
- "question" is one clear question answerable from the lesson so far
- "options" holds 3-4 plausible choices, at least 2, no "all of the above"
- "answerIndex" is the 0-based index of the single correct option
- "explanation" says why the correct option is correct
- "hint" is REQUIRED: one sentence that nudges toward the answer without revealing it
- "optionExplanations" may explain each option in order, or be null
- "body", "text", "answers" and "caseSensitive" are null

fill-blank
- "text" is one or two sentences with numbered placeholders [[1]], [[2]], ...
- "answers" lists one entry per placeholder number used in "text", e.g. [{"placeholder": "1", "answer": "goroutine"}]
- Do not add answer keys that no placeholder uses
- "caseSensitive" is true only when capitalisation matters, otherwise null
- "body", "question", "options", "answerIndex", "explanation", "optionExplanations" and "hint" are null

OUTPUT SHAPE:
- Every card carries EVERY property listed above; properties that do not belong to the card's type are null
- "title" is a short card title or null
- Never put the correct answer or option letters such as "A)" inside a card title`

func OutlineSystemPrompt() string {
	return `You are an experienced instructional designer who turns a topic into a compact, well-sequenced online course.

COURSE:
- "title" is specific and concrete, at most 60 characters
- "description" is 1-2 sentences describing who the course is for and what they will be able to do
- "category" is a single lowercase word or short phrase (for example "programming", "language", "design"), or null

LESSONS:
- Lessons progress from fundamentals to application; each builds on the previous one
- Each lesson "title" is short and names one learnable idea
- Each lesson "summary" is one sentence on what the learner does or understands after the lesson, or null
- No duplicate or near-duplicate lessons
- No lesson is a pure review or a course introduction unless the learner asked for one

Match the learner level: beginners get more foundational lessons, advanced learners skip basics.

Return the result through the provided JSON schema only. Do not add commentary.`
}

func BuildOutlineUserPrompt(p models.OutlineParams) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Design a course outline with exactly %d lessons.\n\n", p.LessonCount)
	fmt.Fprintf(&b, "Theme: %s\n", p.Theme)
	if p.Level != "" {
		fmt.Fprintf(&b, "Learner level: %s\n", p.Level)
	}
	if p.Goal != "" {
		fmt.Fprintf(&b, "Learner goal: %s\n", p.Goal)
	}
	if p.UserBrief != "" {
		fmt.Fprintf(&b, "\nAdditional instructions from the author:\n%s\n", p.UserBrief)
	}
	b.WriteString(`
Respond with this exact JSON structure:
{
  "course": {"title": "...", "description": "...", "category": "..."},
  "lessons": [
    {"title": "...", "summary": "..."}
  ]
}
`)
	return b.String()
}

func LessonCardsSystemPrompt() string {
	return `You write bite-sized learning cards for a mobile course player. A lesson is an ordered sequence of cards that a learner swipes through in about five minutes.

SEQUENCING:
- Open with a text card that frames the lesson
- Alternate explanation (text) with practice (quiz, fill-blank); never more than two text cards in a row
- Practice only what earlier cards have taught
- Close with a card that consolidates the key idea

` + cardRules + `

Return the result through the provided JSON schema only. Do not add commentary.`
}

func BuildLessonCardsUserPrompt(p models.LessonCardsParams) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write exactly %d cards for the lesson %q.\n", p.DesiredCount, p.LessonTitle)
	if p.DesiredCardType != "" {
		fmt.Fprintf(&b, "Every card must be of type %q.\n", p.DesiredCardType)
	}
	writeCourseContext(&b, p.Course)
	writeExistingTitles(&b, p.ExistingTitles)
	if p.UserBrief != "" {
		fmt.Fprintf(&b, "\nAdditional instructions from the author:\n%s\n", p.UserBrief)
	}
	b.WriteString(`
Respond with this exact JSON structure:
{
  "lessonTitle": "...",
  "cards": [
    {"type": "text", "title": "...", "body": "...", "question": null, "options": null, "answerIndex": null, "explanation": null, "optionExplanations": null, "hint": null, "text": null, "answers": null, "caseSensitive": null},
    {"type": "quiz", "title": "...", "body": null, "question": "...", "options": ["...", "...", "..."], "answerIndex": 1, "explanation": "...", "optionExplanations": null, "hint": "...", "text": null, "answers": null, "caseSensitive": null},
    {"type": "fill-blank", "title": "...", "body": null, "question": null, "options": null, "answerIndex": null, "explanation": null, "optionExplanations": null, "hint": null, "text": "... [[1]] ...", "answers": [{"placeholder": "1", "answer": "..."}], "caseSensitive": null}
  ]
}
`)
	return b.String()
}

func SingleCardSystemPrompt() string {
	return `You write one additional learning card for an existing lesson in a mobile course player. The card must fit the lesson and must not repeat cards that already exist.

` + cardRules + `

Return exactly one card through the provided JSON schema only. Do not add commentary.`
}

// BuildSingleCardUserPrompt builds the prompt for one card. brief is set
// when the card was planned ahead; its type then wins over the request's.
func BuildSingleCardUserPrompt(p models.LessonCardsParams, brief *CardBrief) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write exactly 1 card for the lesson %q.\n", p.LessonTitle)

	cardType := p.DesiredCardType
	if brief != nil {
		cardType = brief.Type
		fmt.Fprintf(&b, "This is card %d of %d.\n", brief.Index+1, p.DesiredCount)
		fmt.Fprintf(&b, "Card brief: %s\n", brief.Brief)
	}
	if cardType != "" {
		fmt.Fprintf(&b, "The card must be of type %q.\n", cardType)
	}
	writeCourseContext(&b, p.Course)
	writeExistingTitles(&b, p.ExistingTitles)
	if p.UserBrief != "" {
		fmt.Fprintf(&b, "\nAdditional instructions from the author:\n%s\n", p.UserBrief)
	}
	b.WriteString("\nRespond with {\"lessonTitle\": \"...\", \"cards\": [ <one card> ]}.\n")
	return b.String()
}

func PlannerSystemPrompt() string {
	return `You plan the card sequence of a lesson before the cards are written.

For each card give:
- "type": one of "text", "quiz", "fill-blank"
- "brief": one short line saying what the card covers

RULES:
- Open with a text card; alternate explanation with practice
- A brief names the concept only. Never include questions, options, option letters, correct answers or blank placeholders
- Briefs must not overlap

Return the plan through the provided JSON schema only. Do not add commentary.`
}

func BuildPlannerUserPrompt(p models.LessonCardsParams) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Plan exactly %d cards for the lesson %q.\n", p.DesiredCount, p.LessonTitle)
	if p.DesiredCardType != "" {
		fmt.Fprintf(&b, "Every card must be of type %q.\n", p.DesiredCardType)
	}
	writeCourseContext(&b, p.Course)
	writeExistingTitles(&b, p.ExistingTitles)
	if p.UserBrief != "" {
		fmt.Fprintf(&b, "\nAdditional instructions from the author:\n%s\n", p.UserBrief)
	}
	b.WriteString(`
Respond with this exact JSON structure:
{
  "cards": [
    {"type": "text", "brief": "..."}
  ]
}
`)
	return b.String()
}

func writeCourseContext(b *strings.Builder, c *models.CourseContext) {
	if c == nil {
		return
	}
	fmt.Fprintf(b, "\nCourse: %s\n", c.Title)
	if c.Description != "" {
		fmt.Fprintf(b, "Course description: %s\n", c.Description)
	}
	if c.Category != "" {
		fmt.Fprintf(b, "Category: %s\n", c.Category)
	}
	if c.Level != "" {
		fmt.Fprintf(b, "Learner level: %s\n", c.Level)
	}
}

func writeExistingTitles(b *strings.Builder, titles []string) {
	if len(titles) == 0 {
		return
	}
	b.WriteString("\nCards that already exist in this lesson (do not repeat them):\n")
	for _, t := range titles {
		fmt.Fprintf(b, "- %s\n", t)
	}
}
