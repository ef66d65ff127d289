package generator

import (
	"context"
	"fmt"
	"strings"

	"github.com/course-studio/backend/internal/models"
)

// ── MockGenerator: Local Development and Tests ─────────────

// MockGenerator returns deterministic, invariant-satisfying content for the
// same inputs. Its payloads travel through the same wire encoding and
// validation as live output.
type MockGenerator struct{}

func NewMockGenerator() *MockGenerator {
	return &MockGenerator{}
}

func (m *MockGenerator) ModelName() string {
	return "mock"
}

func (m *MockGenerator) Outline(ctx context.Context, p models.OutlineParams) (*LLMResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := EncodeCoursePlan(MockOutline(p))
	if err != nil {
		return nil, fmt.Errorf("mock outline: %w", err)
	}
	return &LLMResponse{Structured: raw}, nil
}

func (m *MockGenerator) LessonCards(ctx context.Context, p models.LessonCardsParams) (*LLMResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := EncodeLessonCards(MockLessonCards(p))
	if err != nil {
		return nil, fmt.Errorf("mock lesson cards: %w", err)
	}
	return &LLMResponse{Structured: raw}, nil
}

func (m *MockGenerator) SingleCard(ctx context.Context, p models.LessonCardsParams, brief *CardBrief) (*LLMResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := EncodeLessonCards(MockSingleCard(p, brief))
	if err != nil {
		return nil, fmt.Errorf("mock single card: %w", err)
	}
	return &LLMResponse{Structured: raw}, nil
}

func (m *MockGenerator) PlanCards(ctx context.Context, p models.LessonCardsParams) (*LLMResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	plan := MockCardPlan(p)
	raw, err := encodeCardPlan(plan)
	if err != nil {
		return nil, fmt.Errorf("mock card plan: %w", err)
	}
	return &LLMResponse{Structured: raw}, nil
}

var lessonStems = []string{
	"Getting started with %s",
	"Core concepts of %s",
	"Key terminology in %s",
	"Working with %s step by step",
	"Common patterns in %s",
	"Common mistakes in %s",
	"Applying %s to real problems",
	"Going deeper into %s",
	"Putting %s into practice",
}

var cardCycle = []models.CardType{models.CardText, models.CardQuiz, models.CardFillBlank}

// MockOutline returns a plan with exactly Clamp(LessonCount) lessons.
func MockOutline(p models.OutlineParams) *models.CoursePlan {
	n := models.Clamp(p.LessonCount, models.MinLessons, models.MaxLessons)
	theme := p.Theme
	if theme == "" {
		theme = "the topic"
	}

	description := fmt.Sprintf("A %d-lesson course on %s.", n, theme)
	if p.Level != "" {
		description = fmt.Sprintf("A %d-lesson %s course on %s.", n, p.Level, theme)
	}
	if p.Goal != "" {
		description += " Goal: " + p.Goal
	}
	category := "general"

	plan := &models.CoursePlan{
		Course: models.PlanCourse{
			Title:       "Introduction to " + theme,
			Description: &description,
			Category:    &category,
		},
		Lessons: make([]models.PlanLesson, n),
	}
	for i := 0; i < n; i++ {
		var title string
		if i < len(lessonStems) {
			title = fmt.Sprintf(lessonStems[i], theme)
		} else {
			title = fmt.Sprintf("%s, part %d", theme, i+1)
		}
		summary := fmt.Sprintf("Lesson %d of %d on %s.", i+1, n, theme)
		plan.Lessons[i] = models.PlanLesson{Title: title, Summary: &summary}
	}
	return plan
}

// MockLessonCards returns exactly Clamp(DesiredCount) cards. Types cycle
// text, quiz, fill-blank unless DesiredCardType pins them.
func MockLessonCards(p models.LessonCardsParams) *models.LessonCards {
	n := models.Clamp(p.DesiredCount, models.MinCards, models.MaxCards)
	lc := &models.LessonCards{LessonTitle: p.LessonTitle, Cards: make([]models.Card, n)}
	for i := 0; i < n; i++ {
		lc.Cards[i] = mockCard(i, mockCardType(i, p.DesiredCardType), p.LessonTitle)
	}
	return lc
}

// MockSingleCard returns one card. A planned brief fixes the slot and type.
func MockSingleCard(p models.LessonCardsParams, brief *CardBrief) *models.LessonCards {
	idx := len(p.ExistingTitles)
	typ := mockCardType(idx, p.DesiredCardType)
	if brief != nil {
		idx = brief.Index
		typ = brief.Type
	}
	return &models.LessonCards{
		LessonTitle: p.LessonTitle,
		Cards:       []models.Card{mockCard(idx, typ, p.LessonTitle)},
	}
}

// MockCardPlan returns a plan with the same type sequence MockLessonCards
// would produce.
func MockCardPlan(p models.LessonCardsParams) *CardPlan {
	n := models.Clamp(p.DesiredCount, models.MinCards, models.MaxCards)
	plan := &CardPlan{Cards: make([]CardBrief, n)}
	for i := 0; i < n; i++ {
		plan.Cards[i] = CardBrief{
			Index: i,
			Type:  mockCardType(i, p.DesiredCardType),
			Brief: fmt.Sprintf("Key idea %d of %s", i+1, p.LessonTitle),
		}
	}
	return plan
}

func mockCardType(i int, desired models.CardType) models.CardType {
	if desired != "" {
		return desired
	}
	return cardCycle[i%len(cardCycle)]
}

func mockCard(i int, typ models.CardType, lesson string) models.Card {
	title := fmt.Sprintf("%s %d", lesson, i+1)

	switch typ {
	case models.CardQuiz:
		explanation := fmt.Sprintf("Key idea %d is the one this lesson builds on.", i+1)
		hint := "Think back to the first card of the lesson."
		options := []string{
			fmt.Sprintf("Key idea %d of %s", i+1, lesson),
			"An unrelated idea",
			"None of these ideas",
		}
		return models.QuizCard{
			Type:        models.CardQuiz,
			Title:       &title,
			Question:    fmt.Sprintf("Which statement best describes %s?", lesson),
			Options:     options,
			AnswerIndex: 0,
			Explanation: &explanation,
			Hint:        &hint,
		}
	case models.CardFillBlank:
		// The title is caller text; any [[n]] in it would be a blank with no answer.
		topic := strings.Join(strings.Fields(briefPlaceholder.ReplaceAllString(lesson, " ")), " ")
		if topic == "" {
			topic = "this lesson"
		}
		key := fmt.Sprintf("%d", i%2+1)
		return models.FillBlankCard{
			Type:    models.CardFillBlank,
			Title:   &title,
			Text:    fmt.Sprintf("The lesson %s is about [[%s]].", topic, key),
			Answers: map[string]string{key: topic},
		}
	}

	return models.TextCard{
		Type:  models.CardText,
		Title: &title,
		Body:  fmt.Sprintf("## %s\n\nKey idea %d of %s.", lesson, i+1, lesson),
	}
}
