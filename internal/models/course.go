package models

import "github.com/google/uuid"

// ── Bounds ─────────────────────────────────────────────

const (
	MinLessons         = 3
	MaxLessons         = 30
	DefaultLessonCount = 6

	MinCards         = 3
	MaxCards         = 20
	DefaultCardCount = 6
)

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ── Course Outline ─────────────────────────────────────

// CoursePlan is the course skeleton produced by outline generation.
type CoursePlan struct {
	Course  PlanCourse   `json:"course"`
	Lessons []PlanLesson `json:"lessons"`
}

type PlanCourse struct {
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	Category    *string `json:"category,omitempty"`
}

type PlanLesson struct {
	Title   string  `json:"title"`
	Summary *string `json:"summary,omitempty"`
}

// ── Lesson Cards ───────────────────────────────────────

type CardType string

const (
	CardText      CardType = "text"
	CardQuiz      CardType = "quiz"
	CardFillBlank CardType = "fill-blank"
)

var ValidCardTypes = map[CardType]bool{
	CardText:      true,
	CardQuiz:      true,
	CardFillBlank: true,
}

// Card is one learning unit of a lesson. The concrete value is TextCard,
// QuizCard or FillBlankCard; the JSON "type" field carries the tag.
type Card interface {
	CardType() CardType
	CardTitle() string
}

type TextCard struct {
	Type  CardType `json:"type"`
	Title *string  `json:"title"`
	Body  string   `json:"body"`
}

type QuizCard struct {
	Type               CardType `json:"type"`
	Title              *string  `json:"title"`
	Question           string   `json:"question"`
	Options            []string `json:"options"`
	AnswerIndex        int      `json:"answerIndex"`
	Explanation        *string  `json:"explanation"`
	OptionExplanations []string `json:"optionExplanations,omitempty"`
	Hint               *string  `json:"hint"`
}

type FillBlankCard struct {
	Type          CardType          `json:"type"`
	Title         *string           `json:"title"`
	Text          string            `json:"text"`
	Answers       map[string]string `json:"answers"`
	CaseSensitive *bool             `json:"caseSensitive,omitempty"`
}

func (TextCard) CardType() CardType      { return CardText }
func (QuizCard) CardType() CardType      { return CardQuiz }
func (FillBlankCard) CardType() CardType { return CardFillBlank }

func (c TextCard) CardTitle() string      { return deref(c.Title) }
func (c QuizCard) CardTitle() string      { return deref(c.Title) }
func (c FillBlankCard) CardTitle() string { return deref(c.Title) }

// LessonCards is an ordered batch of cards for one lesson.
type LessonCards struct {
	LessonTitle string `json:"lessonTitle"`
	Cards       []Card `json:"cards"`
}

// CardTypes returns the type tag of every card in order.
func (lc *LessonCards) CardTypes() []CardType {
	out := make([]CardType, len(lc.Cards))
	for i, c := range lc.Cards {
		out[i] = c.CardType()
	}
	return out
}

// ── Request Types ─────────────────────────────────────

// CourseContext is optional course metadata used to steer lesson generation.
type CourseContext struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
	Level       string `json:"level,omitempty"`
}

// OutlineInput is the untrusted outline request as received from a client.
// LessonCount is left untyped so that strings and garbage survive decoding
// and are handled by the normalizer.
type OutlineInput struct {
	Theme       string `json:"theme"`
	Level       string `json:"level,omitempty"`
	Goal        string `json:"goal,omitempty"`
	LessonCount any    `json:"lessonCount,omitempty"`
	UserBrief   string `json:"userBrief,omitempty"`
}

// LessonCardsInput is the untrusted lesson-cards request.
type LessonCardsInput struct {
	LessonTitle     string         `json:"lessonTitle"`
	DesiredCount    any            `json:"desiredCount,omitempty"`
	CourseID        string         `json:"courseId,omitempty"`
	Course          *CourseContext `json:"course,omitempty"`
	DesiredCardType string         `json:"desiredCardType,omitempty"`
	UserBrief       string         `json:"userBrief,omitempty"`
	ExistingTitles  []string       `json:"existingTitles,omitempty"`
}

// OutlineParams is the canonical outline request.
type OutlineParams struct {
	Theme       string
	Level       string
	Goal        string
	LessonCount int
	UserBrief   string
}

// LessonCardsParams is the canonical lesson-cards request. An empty
// DesiredCardType means the card types are unconstrained.
type LessonCardsParams struct {
	LessonTitle     string
	DesiredCount    int
	CourseID        *uuid.UUID
	Course          *CourseContext
	DesiredCardType CardType
	UserBrief       string
	ExistingTitles  []string
}

// ── Response Types ────────────────────────────────────

type ProgressUpdate struct {
	TS   int64  `json:"ts"`
	Text string `json:"text"`
}

type OutlineResponse struct {
	Plan    *CoursePlan      `json:"plan"`
	Updates []ProgressUpdate `json:"updates"`
}

type LessonCardsResponse struct {
	Payload *LessonCards     `json:"payload"`
	Updates []ProgressUpdate `json:"updates"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
