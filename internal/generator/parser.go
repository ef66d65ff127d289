package generator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/course-studio/backend/internal/models"
)

// CardsVariant selects the cardinality bound used by ParseLessonCards.
type CardsVariant int

const (
	BatchVariant CardsVariant = iota
	SingleVariant
)

func (v CardsVariant) bounds() (int, int) {
	if v == SingleVariant {
		return 1, 1
	}
	return models.MinCards, models.MaxCards
}

// wireCard is the flattened card as it travels over the structured-output
// contract. Properties that do not belong to the card's type are null.
type wireCard struct {
	Type               *string           `json:"type"`
	Title              *string           `json:"title"`
	Body               *string           `json:"body"`
	Question           *string           `json:"question"`
	Options            []string          `json:"options"`
	AnswerIndex        *int              `json:"answerIndex"`
	Explanation        *string           `json:"explanation"`
	OptionExplanations []string          `json:"optionExplanations"`
	Hint               *string           `json:"hint"`
	Text               *string           `json:"text"`
	Answers            json.RawMessage   `json:"answers"`
	CaseSensitive      *bool             `json:"caseSensitive"`
}

// wireAnswer is one fill-blank answer on the wire. Strict tool schemas only
// allow closed objects, so the answer map travels as a list of pairs.
type wireAnswer struct {
	Placeholder *string `json:"placeholder"`
	Answer      *string `json:"answer"`
}

type wireLessonCardsIn struct {
	LessonTitle *string           `json:"lessonTitle"`
	Cards       []json.RawMessage `json:"cards"`
}

type wireLessonCardsOut struct {
	LessonTitle string     `json:"lessonTitle"`
	Cards       []wireCard `json:"cards"`
}

type wireCourse struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Category    *string `json:"category"`
}

type wireLesson struct {
	Title   *string `json:"title"`
	Summary *string `json:"summary"`
}

type wirePlan struct {
	Course  *wireCourse  `json:"course"`
	Lessons []wireLesson `json:"lessons"`
}

// ParseLessonCards decodes raw generator output into a LessonCards value.
// It checks structure only: required properties, known card types, the
// cardinality bound of the variant. Business rules live in CheckLessonCards.
func ParseLessonCards(raw []byte, variant CardsVariant) (*models.LessonCards, error) {
	cleaned := stripCodeFences(string(raw))
	if cleaned == "" {
		return nil, schemaMismatch("empty output")
	}

	var in wireLessonCardsIn
	if err := decodeStrict([]byte(cleaned), &in); err != nil {
		return nil, schemaMismatch("%v", err)
	}
	if in.LessonTitle == nil {
		return nil, schemaMismatch("lessonTitle is required")
	}

	lo, hi := variant.bounds()
	if n := len(in.Cards); n < lo || n > hi {
		if lo == hi {
			return nil, schemaMismatch("expected exactly %d card, got %d", lo, n)
		}
		return nil, schemaMismatch("expected between %d and %d cards, got %d", lo, hi, n)
	}

	out := &models.LessonCards{
		LessonTitle: *in.LessonTitle,
		Cards:       make([]models.Card, 0, len(in.Cards)),
	}
	for i, rawCard := range in.Cards {
		card, err := parseCard(i+1, rawCard)
		if err != nil {
			return nil, err
		}
		out.Cards = append(out.Cards, card)
	}
	return out, nil
}

func parseCard(pos int, raw json.RawMessage) (models.Card, error) {
	var w wireCard
	if err := decodeStrict(raw, &w); err != nil {
		return nil, schemaMismatch("card %d: %v", pos, err)
	}
	if w.Type == nil {
		return nil, schemaMismatch("card %d: type is required", pos)
	}

	switch models.CardType(*w.Type) {
	case models.CardText:
		if w.Body == nil || strings.TrimSpace(*w.Body) == "" {
			return nil, schemaMismatch("card %d: text card requires a non-empty body", pos)
		}
		return models.TextCard{Type: models.CardText, Title: w.Title, Body: *w.Body}, nil

	case models.CardQuiz:
		if w.Question == nil {
			return nil, schemaMismatch("card %d: quiz card requires question", pos)
		}
		if w.Options == nil {
			return nil, schemaMismatch("card %d: quiz card requires options", pos)
		}
		if w.AnswerIndex == nil {
			return nil, schemaMismatch("card %d: quiz card requires answerIndex", pos)
		}
		if *w.AnswerIndex < 0 {
			return nil, schemaMismatch("card %d: answerIndex must be >= 0, got %d", pos, *w.AnswerIndex)
		}
		return models.QuizCard{
			Type:               models.CardQuiz,
			Title:              w.Title,
			Question:           *w.Question,
			Options:            w.Options,
			AnswerIndex:        *w.AnswerIndex,
			Explanation:        w.Explanation,
			OptionExplanations: w.OptionExplanations,
			Hint:               w.Hint,
		}, nil

	case models.CardFillBlank:
		if w.Text == nil {
			return nil, schemaMismatch("card %d: fill-blank card requires text", pos)
		}
		answers, err := decodeAnswers(w.Answers)
		if err != nil {
			return nil, schemaMismatch("card %d: %v", pos, err)
		}
		return models.FillBlankCard{
			Type:          models.CardFillBlank,
			Title:         w.Title,
			Text:          *w.Text,
			Answers:       answers,
			CaseSensitive: w.CaseSensitive,
		}, nil
	}

	return nil, schemaMismatch("card %d: unknown type %q", pos, *w.Type)
}

// decodeAnswers accepts the wire pair list. A plain object is also accepted
// since recovered history text does not always follow the tool schema.
func decodeAnswers(raw json.RawMessage) (map[string]string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, fmt.Errorf("fill-blank card requires answers")
	}

	if trimmed[0] == '{' {
		var m map[string]string
		if err := decodeStrict(trimmed, &m); err != nil {
			return nil, fmt.Errorf("answers: %v", err)
		}
		return m, nil
	}

	var pairs []wireAnswer
	if err := decodeStrict(trimmed, &pairs); err != nil {
		return nil, fmt.Errorf("answers: %v", err)
	}
	answers := make(map[string]string, len(pairs))
	for i, p := range pairs {
		if p.Placeholder == nil || p.Answer == nil {
			return nil, fmt.Errorf("answer %d requires placeholder and answer", i+1)
		}
		key := strings.TrimSpace(*p.Placeholder)
		if _, dup := answers[key]; dup {
			return nil, fmt.Errorf("duplicate answer for placeholder %s", key)
		}
		answers[key] = *p.Answer
	}
	return answers, nil
}

func encodeAnswers(answers map[string]string) (json.RawMessage, error) {
	pairs := make([]wireAnswer, 0, len(answers))
	for _, k := range sortedKeys(answers) {
		key, val := k, answers[k]
		pairs = append(pairs, wireAnswer{Placeholder: &key, Answer: &val})
	}
	return json.Marshal(pairs)
}

// ParseOutline decodes raw generator output into a CoursePlan.
func ParseOutline(raw []byte) (*models.CoursePlan, error) {
	cleaned := stripCodeFences(string(raw))
	if cleaned == "" {
		return nil, schemaMismatch("empty output")
	}

	var in wirePlan
	if err := decodeStrict([]byte(cleaned), &in); err != nil {
		return nil, schemaMismatch("%v", err)
	}
	if in.Course == nil {
		return nil, schemaMismatch("course is required")
	}
	if in.Course.Title == nil || strings.TrimSpace(*in.Course.Title) == "" {
		return nil, schemaMismatch("course.title must be a non-empty string")
	}
	if n := len(in.Lessons); n < models.MinLessons || n > models.MaxLessons {
		return nil, schemaMismatch("expected between %d and %d lessons, got %d", models.MinLessons, models.MaxLessons, n)
	}

	plan := &models.CoursePlan{
		Course: models.PlanCourse{
			Title:       *in.Course.Title,
			Description: in.Course.Description,
			Category:    in.Course.Category,
		},
		Lessons: make([]models.PlanLesson, 0, len(in.Lessons)),
	}
	for i, l := range in.Lessons {
		if l.Title == nil || strings.TrimSpace(*l.Title) == "" {
			return nil, schemaMismatch("lesson %d: title must be a non-empty string", i+1)
		}
		plan.Lessons = append(plan.Lessons, models.PlanLesson{Title: *l.Title, Summary: l.Summary})
	}
	return plan, nil
}

// EncodeLessonCards renders cards in wire form, with explicit nulls for the
// properties a card's type does not use.
func EncodeLessonCards(lc *models.LessonCards) ([]byte, error) {
	out := wireLessonCardsOut{LessonTitle: lc.LessonTitle, Cards: make([]wireCard, 0, len(lc.Cards))}
	for i, c := range lc.Cards {
		w, err := toWireCard(c)
		if err != nil {
			return nil, fmt.Errorf("encode card %d: %w", i+1, err)
		}
		out.Cards = append(out.Cards, w)
	}
	return json.Marshal(out)
}

// EncodeCoursePlan renders a plan in wire form.
func EncodeCoursePlan(plan *models.CoursePlan) ([]byte, error) {
	title := plan.Course.Title
	out := wirePlan{
		Course: &wireCourse{
			Title:       &title,
			Description: plan.Course.Description,
			Category:    plan.Course.Category,
		},
		Lessons: make([]wireLesson, len(plan.Lessons)),
	}
	for i, l := range plan.Lessons {
		lt := l.Title
		out.Lessons[i] = wireLesson{Title: &lt, Summary: l.Summary}
	}
	return json.Marshal(out)
}

func toWireCard(c models.Card) (wireCard, error) {
	typ := string(c.CardType())
	switch card := c.(type) {
	case models.TextCard:
		body := card.Body
		return wireCard{Type: &typ, Title: card.Title, Body: &body}, nil
	case models.QuizCard:
		q, idx := card.Question, card.AnswerIndex
		return wireCard{
			Type:               &typ,
			Title:              card.Title,
			Question:           &q,
			Options:            card.Options,
			AnswerIndex:        &idx,
			Explanation:        card.Explanation,
			OptionExplanations: card.OptionExplanations,
			Hint:               card.Hint,
		}, nil
	case models.FillBlankCard:
		text := card.Text
		answers, err := encodeAnswers(card.Answers)
		if err != nil {
			return wireCard{}, err
		}
		return wireCard{
			Type:          &typ,
			Title:         card.Title,
			Text:          &text,
			Answers:       answers,
			CaseSensitive: card.CaseSensitive,
		}, nil
	}
	return wireCard{}, fmt.Errorf("unsupported card value %T", c)
}

func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("unexpected data after JSON value")
	}
	return nil
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimSpace(s)
	} else if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSpace(s)
	}
	if strings.HasSuffix(s, "```") {
		s = strings.TrimSuffix(s, "```")
		s = strings.TrimSpace(s)
	}
	return s
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
