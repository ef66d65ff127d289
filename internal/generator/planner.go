package generator

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/course-studio/backend/internal/models"
)

// CardBrief is one line of a card plan: the type to produce and a short
// description of what the card should cover. Index is the 0-based slot the
// card will occupy in the assembled batch.
type CardBrief struct {
	Index int             `json:"-"`
	Type  models.CardType `json:"type"`
	Brief string          `json:"brief"`
}

// CardPlan is the output of the planning sub-stage.
type CardPlan struct {
	Cards []CardBrief `json:"cards"`
}

type wireCardPlan struct {
	Cards []struct {
		Type  *string `json:"type"`
		Brief *string `json:"brief"`
	} `json:"cards"`
}

// ParseCardPlan validates a raw plan. The plan must hold exactly want
// entries of known types; when desired is set every entry must use it.
// Briefs come back sanitized.
func ParseCardPlan(raw []byte, want int, desired models.CardType) (*CardPlan, error) {
	cleaned := stripCodeFences(string(raw))
	if cleaned == "" {
		return nil, schemaMismatch("empty plan")
	}

	var in wireCardPlan
	if err := decodeStrict([]byte(cleaned), &in); err != nil {
		return nil, schemaMismatch("plan: %v", err)
	}
	if len(in.Cards) != want {
		return nil, violation(CountOutOfRange, 0, "plan has %d cards, want %d", len(in.Cards), want)
	}

	plan := &CardPlan{Cards: make([]CardBrief, 0, len(in.Cards))}
	for i, c := range in.Cards {
		if c.Type == nil || !models.ValidCardTypes[models.CardType(*c.Type)] {
			return nil, schemaMismatch("plan card %d: invalid type", i+1)
		}
		typ := models.CardType(*c.Type)
		if desired != "" && typ != desired {
			return nil, violation(TypeMismatch, i+1, "expected %s card, got %s", desired, typ)
		}
		if c.Brief == nil {
			return nil, schemaMismatch("plan card %d: brief is required", i+1)
		}
		brief := SanitizeBrief(*c.Brief)
		if brief == "" {
			return nil, schemaMismatch("plan card %d: brief is empty", i+1)
		}
		plan.Cards = append(plan.Cards, CardBrief{Index: i, Type: typ, Brief: brief})
	}
	return plan, nil
}

func encodeCardPlan(plan *CardPlan) ([]byte, error) {
	return json.Marshal(plan)
}

var (
	briefPlaceholder = regexp.MustCompile(`\[\[[^\]]*\]\]`)
	briefOptionMark  = regexp.MustCompile(`(?:^|\s)\(?[A-Da-d][)）]\s*`)
	briefAnswerTail  = regexp.MustCompile(`(?i)(正解|答え|\bcorrect answer|\bthe answer|\banswer|\bcorrect\b)\s*(?:is|は|[:：=])\s*[^,.;、。]*`)
	briefLeakWords   = regexp.MustCompile(`(?i)(正解|選択肢|答え|\b(?:correct answers?|answer keys?|answers?)\b)`)
	briefSpaces      = regexp.MustCompile(`\s+`)
)

// SanitizeBrief strips option letters, answer phrases, choice wording and
// blank placeholders from a planner brief so the downstream prompt is less
// likely to inherit a leaked answer. This is best-effort filtering of model
// output, not a security boundary.
func SanitizeBrief(s string) string {
	s = briefPlaceholder.ReplaceAllString(s, " ")
	s = briefAnswerTail.ReplaceAllString(s, " ")
	s = briefOptionMark.ReplaceAllString(s, " ")
	s = briefLeakWords.ReplaceAllString(s, " ")
	s = briefSpaces.ReplaceAllString(s, " ")
	return strings.Trim(s, " :：-")
}
