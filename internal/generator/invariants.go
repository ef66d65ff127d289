package generator

import (
	"regexp"
	"strings"

	"github.com/course-studio/backend/internal/models"
)

var placeholderPattern = regexp.MustCompile(`\[\[([1-9]\d*)\]\]`)

// Policy parameterises the business-rule checks applied after parsing.
type Policy struct {
	// RequireHint makes a non-empty hint mandatory on quiz cards.
	RequireHint bool
	// ExpectedType, when set, must match the type of every card.
	ExpectedType models.CardType
	MinCards     int
	MaxCards     int
}

// AuthoringPolicy is the strict policy for batch generation.
var AuthoringPolicy = Policy{RequireHint: true, MinCards: models.MinCards, MaxCards: models.MaxCards}

// SinglePolicy is the relaxed single-card policy. Hints are optional there
// and the card type is pinned only when the caller asked for one.
func SinglePolicy(expected models.CardType) Policy {
	return Policy{ExpectedType: expected, MinCards: 1, MaxCards: 1}
}

// CheckLessonCards applies the per-card rules followed by the count check.
func CheckLessonCards(lc *models.LessonCards, p Policy) error {
	for i, c := range lc.Cards {
		if err := CheckCard(i+1, c, p); err != nil {
			return err
		}
	}
	if n := len(lc.Cards); n < p.MinCards || n > p.MaxCards {
		return violation(CountOutOfRange, 0, "expected between %d and %d cards, got %d", p.MinCards, p.MaxCards, n)
	}
	return nil
}

// CheckCard applies the rules of p to a single card at 1-based position pos.
func CheckCard(pos int, c models.Card, p Policy) error {
	if p.ExpectedType != "" && c.CardType() != p.ExpectedType {
		return violation(TypeMismatch, pos, "expected %s card, got %s", p.ExpectedType, c.CardType())
	}

	switch card := c.(type) {
	case models.QuizCard:
		if len(card.Options) < 2 {
			return violation(QuizTooFewOptions, pos, "quiz needs at least 2 options, got %d", len(card.Options))
		}
		if card.AnswerIndex < 0 || card.AnswerIndex >= len(card.Options) {
			return violation(QuizAnswerOutOfRange, pos, "answerIndex %d out of range for %d options", card.AnswerIndex, len(card.Options))
		}
		if p.RequireHint && (card.Hint == nil || strings.TrimSpace(*card.Hint) == "") {
			return violation(HintRequired, pos, "quiz hint is required")
		}
	case models.FillBlankCard:
		for _, n := range Placeholders(card.Text) {
			if _, ok := card.Answers[n]; !ok {
				return violation(FillBlankKeyMissing, pos, "fill-blank missing key: %s", n)
			}
		}
	}
	return nil
}

// CheckOutline re-checks the lesson count of a parsed plan.
func CheckOutline(plan *models.CoursePlan) error {
	if n := len(plan.Lessons); n < models.MinLessons || n > models.MaxLessons {
		return violation(CountOutOfRange, 0, "expected between %d and %d lessons, got %d", models.MinLessons, models.MaxLessons, n)
	}
	return nil
}

// Placeholders returns the distinct placeholder numbers in text in order of
// first appearance.
func Placeholders(text string) []string {
	matches := placeholderPattern.FindAllStringSubmatch(text, -1)
	seen := make(map[string]bool, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	return out
}

// UnreferencedAnswerKeys lists answer keys that no placeholder refers to.
// These are tolerated but worth a warning.
func UnreferencedAnswerKeys(card models.FillBlankCard) []string {
	referenced := make(map[string]bool)
	for _, n := range Placeholders(card.Text) {
		referenced[n] = true
	}
	var dead []string
	for _, k := range sortedKeys(card.Answers) {
		if !referenced[k] {
			dead = append(dead, k)
		}
	}
	return dead
}

// ValidateLessonCards runs the structural parse and then the rule checks.
func ValidateLessonCards(raw []byte, variant CardsVariant, p Policy) (*models.LessonCards, error) {
	lc, err := ParseLessonCards(raw, variant)
	if err != nil {
		return nil, err
	}
	if err := CheckLessonCards(lc, p); err != nil {
		return nil, err
	}
	return lc, nil
}

// ValidateOutline runs the structural parse and the count re-check.
func ValidateOutline(raw []byte) (*models.CoursePlan, error) {
	plan, err := ParseOutline(raw)
	if err != nil {
		return nil, err
	}
	if err := CheckOutline(plan); err != nil {
		return nil, err
	}
	return plan, nil
}
